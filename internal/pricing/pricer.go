package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/polycontrol/api/internal/enum"
)

// Catalog entry as the pricer sees it: a subset of the stored service row.
type Service struct {
	Unit        string
	PriceRetail decimal.Decimal
	PriceDealer decimal.Decimal
	Options     []byte // raw options payload, parsed per line
}

// LineParams are the quantity/dimension inputs of a single order line.
// Width, Height and Copies apply to area units; Quantity to discrete units.
// Selected holds the chosen option keys.
type LineParams struct {
	ClientType string
	Quantity   decimal.Decimal
	Width      decimal.Decimal
	Height     decimal.Decimal
	Copies     int
	Selected   map[string]bool
}

// PricedLine is the computed price breakdown of one line. Area is set only
// for area units. Total is always BaseCost + OptionsCost.
type PricedLine struct {
	UnitPrice   decimal.Decimal
	Quantity    decimal.Decimal
	Area        *decimal.Decimal
	BaseCost    decimal.Decimal
	OptionsCost decimal.Decimal
	Total       decimal.Decimal
}

// UnitPrice resolves the price tier: the dealer price applies only when the
// client is a dealer and the service actually has a dealer tier (price > 0).
func UnitPrice(svc *Service, clientType string) decimal.Decimal {
	if clientType == enum.ClientTypeDealer && svc.PriceDealer.IsPositive() {
		return svc.PriceDealer
	}
	return svc.PriceRetail
}

// PriceLine computes the full breakdown for one order line. It is total:
// a nil service or garbage numeric inputs produce a zero-valued line, never
// an error. The order form recomputes on every keystroke and must always
// have something to show. Negative inputs are clamped to zero.
func PriceLine(svc *Service, p LineParams) PricedLine {
	if svc == nil {
		return PricedLine{}
	}

	unitPrice := UnitPrice(svc, p.ClientType)

	var line PricedLine
	line.UnitPrice = unitPrice

	if ClassifyUnit(svc.Unit) == UnitArea {
		w := clampZero(p.Width)
		h := clampZero(p.Height)
		copies := p.Copies
		if copies < 1 {
			copies = 1
		}
		area := w.Mul(h).Round(2)
		line.Area = &area
		line.Quantity = area.Mul(decimal.NewFromInt(int64(copies))).Round(2)
	} else {
		line.Quantity = clampZero(p.Quantity)
	}

	line.BaseCost = line.Quantity.Mul(unitPrice)

	// A selected option charges for at least one unit even before the line
	// has dimensions, so toggling it is visible immediately.
	optUnits := decimal.Max(line.Quantity, decimal.NewFromInt(1))
	for _, opt := range ParseOptions(svc.Options) {
		if p.Selected[opt.Key] && opt.Price.IsPositive() {
			line.OptionsCost = line.OptionsCost.Add(opt.Price.Mul(optUnits))
		}
	}

	line.Total = line.BaseCost.Add(line.OptionsCost)
	return line
}

// Total sums line totals. Lines are independent: no cross-line discounts.
func Total(lines []PricedLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total)
	}
	return sum
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
