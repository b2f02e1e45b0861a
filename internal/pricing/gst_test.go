package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/utafrali/ordercore/internal/domain"
)

func testRules() TaxRules {
	return TaxRules{
		OriginState:    "KA",
		DefaultRateBps: 1800,
		HSNRates: map[string]int64{
			"6109": 500,
			"61":   1200,
			"8471": 1800,
		},
	}
}

func TestTaxRules_RateFor(t *testing.T) {
	r := testRules()
	assert.Equal(t, int64(500), r.RateFor("61091000"))
	assert.Equal(t, int64(1200), r.RateFor("6110"))
	assert.Equal(t, int64(1800), r.RateFor("6205"))
	assert.Equal(t, int64(1800), r.RateFor(""))
}

func TestTaxRules_ModeFor(t *testing.T) {
	r := testRules()
	assert.Equal(t, TaxModeIntraState, r.ModeFor(Destination{State: "ka", Country: "IN"}))
	assert.Equal(t, TaxModeInterState, r.ModeFor(Destination{State: "MH", Country: "IN"}))
	assert.Equal(t, TaxModeInterState, r.ModeFor(Destination{State: "MH"}))
	assert.Equal(t, TaxModeExport, r.ModeFor(Destination{State: "CA", Country: "US"}))
}

func TestComputeTax(t *testing.T) {
	r := testRules()

	intra := ComputeTax(1005, Destination{State: "KA", Country: "IN"}, "8471", r)
	assert.Equal(t, TaxResult{
		RateBps:    1800,
		Mode:       TaxModeIntraState,
		Components: domain.TaxBreakdown{CGST: 90, SGST: 91},
		Total:      181,
	}, intra)

	inter := ComputeTax(1005, Destination{State: "MH", Country: "IN"}, "8471", r)
	assert.Equal(t, domain.TaxBreakdown{IGST: 181}, inter.Components)
	assert.Equal(t, int64(181), inter.Total)

	export := ComputeTax(1005, Destination{State: "CA", Country: "US"}, "8471", r)
	assert.Equal(t, TaxModeExport, export.Mode)
	assert.Zero(t, export.Total)
	assert.Zero(t, export.RateBps)
}

func TestComputeTax_RoundsHalfUp(t *testing.T) {
	res := ComputeTax(25, Destination{State: "MH", Country: "IN"}, "", testRules())
	assert.Equal(t, int64(5), res.Total)
}

func TestSplitTax(t *testing.T) {
	assert.Equal(t, domain.TaxBreakdown{CGST: 3, SGST: 4}, SplitTax(7, TaxModeIntraState))
	assert.Equal(t, domain.TaxBreakdown{IGST: 7}, SplitTax(7, TaxModeInterState))
	assert.Equal(t, domain.TaxBreakdown{}, SplitTax(7, TaxModeExport))
}
