package pricing

import (
	"strings"

	"github.com/utafrali/ordercore/internal/domain"
)

// TaxMode says which GST components apply.
type TaxMode string

const (
	TaxModeIntraState TaxMode = "intra_state"
	TaxModeInterState TaxMode = "inter_state"
	TaxModeExport     TaxMode = "export"
)

// HomeCountry is the country GST applies in. Shipments elsewhere are exports.
const HomeCountry = "IN"

// Destination is where an order ships to.
type Destination struct {
	State   string
	Country string
}

// TaxRules are the GST slabs. Rates are basis points. HSNRates keys may be
// full HSN codes or prefixes such as a 4-digit heading; the longest matching
// prefix wins and DefaultRateBps applies when nothing matches.
type TaxRules struct {
	OriginState    string
	DefaultRateBps int64
	HSNRates       map[string]int64
}

// RateFor returns the slab rate for an HSN code.
func (r TaxRules) RateFor(hsn string) int64 {
	hsn = strings.TrimSpace(hsn)
	for n := len(hsn); n > 0; n-- {
		if rate, ok := r.HSNRates[hsn[:n]]; ok {
			return rate
		}
	}
	return r.DefaultRateBps
}

// ModeFor decides between intra-state, inter-state and export treatment.
func (r TaxRules) ModeFor(dest Destination) TaxMode {
	if dest.Country != "" && !strings.EqualFold(dest.Country, HomeCountry) {
		return TaxModeExport
	}
	if strings.EqualFold(strings.TrimSpace(dest.State), strings.TrimSpace(r.OriginState)) {
		return TaxModeIntraState
	}
	return TaxModeInterState
}

// TaxResult is the tax on one taxable amount.
type TaxResult struct {
	RateBps    int64               `json:"rate_bps"`
	Mode       TaxMode             `json:"mode"`
	Components domain.TaxBreakdown `json:"components"`
	Total      int64               `json:"total"`
}

// ComputeTax applies the slab for hsn to amount, rounding half up once.
// Exports are zero-rated.
func ComputeTax(amount int64, dest Destination, hsn string, rules TaxRules) TaxResult {
	mode := rules.ModeFor(dest)
	if mode == TaxModeExport || amount <= 0 {
		return TaxResult{Mode: mode, RateBps: rateUnlessExport(mode, rules.RateFor(hsn))}
	}

	rate := rules.RateFor(hsn)
	total := (amount*rate + 5000) / 10000
	return TaxResult{
		RateBps:    rate,
		Mode:       mode,
		Components: SplitTax(total, mode),
		Total:      total,
	}
}

func rateUnlessExport(mode TaxMode, rate int64) int64 {
	if mode == TaxModeExport {
		return 0
	}
	return rate
}

// SplitTax divides a tax total into components. Intra-state tax is CGST and
// SGST halves with SGST taking the odd unit.
func SplitTax(total int64, mode TaxMode) domain.TaxBreakdown {
	switch mode {
	case TaxModeIntraState:
		cgst := total / 2
		return domain.TaxBreakdown{CGST: cgst, SGST: total - cgst}
	case TaxModeInterState:
		return domain.TaxBreakdown{IGST: total}
	default:
		return domain.TaxBreakdown{}
	}
}
