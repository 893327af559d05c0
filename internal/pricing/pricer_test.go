package pricing_test

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polycontrol/api/internal/enum"
	"github.com/polycontrol/api/internal/pricing"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func bannerService() *pricing.Service {
	return &pricing.Service{
		Unit:        "м²",
		PriceRetail: dec("500"),
		PriceDealer: dec("450"),
		Options:     []byte(`[{"key":"lam","label":"Ламинация","price":50}]`),
	}
}

func TestPriceLineAreaDealerWithOption(t *testing.T) {
	line := pricing.PriceLine(bannerService(), pricing.LineParams{
		ClientType: enum.ClientTypeDealer,
		Width:      dec("2"),
		Height:     dec("1.5"),
		Copies:     2,
		Selected:   map[string]bool{"lam": true},
	})

	if !line.UnitPrice.Equal(dec("450")) {
		t.Errorf("unit price: got %s, want 450", line.UnitPrice)
	}
	if line.Area == nil || !line.Area.Equal(dec("3")) {
		t.Errorf("area: got %v, want 3.00", line.Area)
	}
	if !line.Quantity.Equal(dec("6")) {
		t.Errorf("quantity: got %s, want 6.00", line.Quantity)
	}
	if !line.BaseCost.Equal(dec("2700")) {
		t.Errorf("base cost: got %s, want 2700", line.BaseCost)
	}
	if !line.OptionsCost.Equal(dec("300")) {
		t.Errorf("options cost: got %s, want 300 (50 × 6)", line.OptionsCost)
	}
	if !line.Total.Equal(dec("3000")) {
		t.Errorf("total: got %s, want 3000", line.Total)
	}
}

func TestPriceLineDealerFallsBackToRetail(t *testing.T) {
	svc := &pricing.Service{Unit: "шт", PriceRetail: dec("350"), PriceDealer: decimal.Zero}

	retail := pricing.PriceLine(svc, pricing.LineParams{ClientType: enum.ClientTypeRetail, Quantity: dec("4")})
	dealer := pricing.PriceLine(svc, pricing.LineParams{ClientType: enum.ClientTypeDealer, Quantity: dec("4")})

	if !retail.Total.Equal(dealer.Total) {
		t.Errorf("dealer with no dealer tier must price as retail: retail %s, dealer %s", retail.Total, dealer.Total)
	}
	if !dealer.UnitPrice.Equal(dec("350")) {
		t.Errorf("unit price: got %s, want 350", dealer.UnitPrice)
	}
}

func TestPriceLineDiscrete(t *testing.T) {
	svc := &pricing.Service{Unit: "лист", PriceRetail: dec("150")}

	line := pricing.PriceLine(svc, pricing.LineParams{ClientType: enum.ClientTypeRetail, Quantity: dec("5")})
	if line.Area != nil {
		t.Errorf("discrete line must not carry an area, got %s", line.Area)
	}
	if !line.Total.Equal(dec("750")) {
		t.Errorf("total: got %s, want 750", line.Total)
	}
}

func TestPriceLineClampsNegativeInputs(t *testing.T) {
	area := pricing.PriceLine(bannerService(), pricing.LineParams{
		ClientType: enum.ClientTypeRetail,
		Width:      dec("-2"),
		Height:     dec("1.5"),
		Copies:     -3,
	})
	if !area.Total.IsZero() || !area.Quantity.IsZero() {
		t.Errorf("negative width must clamp to a zero line, got quantity %s total %s", area.Quantity, area.Total)
	}

	discrete := pricing.PriceLine(&pricing.Service{Unit: "шт", PriceRetail: dec("5")}, pricing.LineParams{
		ClientType: enum.ClientTypeRetail,
		Quantity:   dec("-10"),
	})
	if !discrete.Total.IsZero() {
		t.Errorf("negative quantity must clamp to zero, got total %s", discrete.Total)
	}
}

func TestPriceLineZeroCopiesCountsAsOne(t *testing.T) {
	line := pricing.PriceLine(bannerService(), pricing.LineParams{
		ClientType: enum.ClientTypeRetail,
		Width:      dec("2"),
		Height:     dec("1"),
		Copies:     0,
	})
	if !line.Quantity.Equal(dec("2")) {
		t.Errorf("quantity with zero copies: got %s, want 2 (copies floor is 1)", line.Quantity)
	}
}

func TestPriceLineSelectedOptionChargesAtLeastOneUnit(t *testing.T) {
	// No dimensions yet: quantity is zero, but a toggled option must still
	// show up in the total as one unit's worth.
	line := pricing.PriceLine(bannerService(), pricing.LineParams{
		ClientType: enum.ClientTypeRetail,
		Selected:   map[string]bool{"lam": true},
	})
	if !line.BaseCost.IsZero() {
		t.Errorf("base cost: got %s, want 0", line.BaseCost)
	}
	if !line.OptionsCost.Equal(dec("50")) {
		t.Errorf("options cost at zero quantity: got %s, want 50", line.OptionsCost)
	}
}

func TestPriceLineNilService(t *testing.T) {
	line := pricing.PriceLine(nil, pricing.LineParams{ClientType: enum.ClientTypeRetail, Quantity: dec("3")})
	if !line.Total.IsZero() || !line.UnitPrice.IsZero() {
		t.Errorf("unknown service must price to an all-zero line, got %+v", line)
	}
}

func TestPriceLineIdempotent(t *testing.T) {
	params := pricing.LineParams{
		ClientType: enum.ClientTypeDealer,
		Width:      dec("1.33"),
		Height:     dec("0.77"),
		Copies:     3,
		Selected:   map[string]bool{"lam": true},
	}
	first := pricing.PriceLine(bannerService(), params)
	second := pricing.PriceLine(bannerService(), params)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical inputs must produce identical lines:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestPriceLineMonotonicInWidth(t *testing.T) {
	prev := decimal.Zero
	for _, w := range []string{"0.5", "1", "1.5", "2", "3.25"} {
		line := pricing.PriceLine(bannerService(), pricing.LineParams{
			ClientType: enum.ClientTypeRetail,
			Width:      dec(w),
			Height:     dec("2"),
			Copies:     1,
		})
		if line.Total.LessThan(prev) {
			t.Fatalf("total decreased when width grew to %s: %s < %s", w, line.Total, prev)
		}
		prev = line.Total
	}
}

func TestTotal(t *testing.T) {
	if !pricing.Total(nil).IsZero() {
		t.Error("empty order must total zero")
	}

	lines := []pricing.PricedLine{{Total: dec("3000")}, {Total: dec("750")}, {Total: decimal.Zero}}
	if got := pricing.Total(lines); !got.Equal(dec("3750")) {
		t.Errorf("total: got %s, want 3750", got)
	}
}
