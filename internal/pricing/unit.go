package pricing

import (
	"strings"
	"unicode"
)

// UnitKind tells how a service's quantity is derived: from width × height
// (area units) or from a plain count (discrete units).
type UnitKind string

const (
	UnitArea     UnitKind = "area"
	UnitDiscrete UnitKind = "discrete"
)

// Unit labels come from the pricelist as free text in Russian or Latin
// script ("м²", "m2", "шт", "лист", ...). Classification scans for known
// tokens after normalization; anything unrecognized is priced per unit,
// since area pricing needs width and height that cannot be assumed.
var (
	areaTokens  = []string{"м2", "м²", "m2", "m²"}
	sheetTokens = []string{"лист", "sheet"}
)

// ClassifyUnit reports whether the unit label describes an area-priced or
// count-priced service. It never fails; unknown labels are discrete.
func ClassifyUnit(unit string) UnitKind {
	u := normalizeUnit(unit)
	for _, tok := range areaTokens {
		if strings.Contains(u, tok) {
			return UnitArea
		}
	}
	return UnitDiscrete
}

// IsSheetUnit reports whether the unit is a sheet-like discrete unit, used
// for the advisory min_order warning on the order form.
func IsSheetUnit(unit string) bool {
	u := normalizeUnit(unit)
	for _, tok := range sheetTokens {
		if strings.Contains(u, tok) {
			return true
		}
	}
	return false
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(unit)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, u)
}
