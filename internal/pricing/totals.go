package pricing

import (
	"fmt"

	"github.com/utafrali/ordercore/internal/domain"
)

// Line is one priced cart line.
type Line struct {
	ProductID string
	HSNCode   string
	UnitPrice int64
	Quantity  int
}

// Input is everything the totals depend on. Calculate has no other inputs.
type Input struct {
	Lines         []Line
	Destination   Destination
	PaymentMethod string
	Coupon        *domain.Coupon
	Shipping      domain.ShippingPolicy
	Tax           TaxRules
}

// LineTotals is a line's share of every order-level amount.
type LineTotals struct {
	LineSubtotal int64
	Discount     int64
	TaxRateBps   int64
	Tax          int64
	TaxBreakdown domain.TaxBreakdown
	Shipping     int64
	Total        int64
}

// Breakdown is the priced order. The line totals sum exactly to GrandTotal.
type Breakdown struct {
	Lines        []LineTotals
	Subtotal     int64
	Discount     int64
	Tax          int64
	TaxBreakdown domain.TaxBreakdown
	TaxMode      TaxMode
	ShippingFee  int64
	CODFee       int64
	GrandTotal   int64
}

// Calculate prices an order. Discount and shipping are allocated to lines by
// line subtotal; tax is computed once per rate slab on the discounted amount
// and each component is allocated to the slab's lines by taxable amount.
func Calculate(in Input) (Breakdown, error) {
	if len(in.Lines) == 0 {
		return Breakdown{}, fmt.Errorf("calculate totals: no lines")
	}

	n := len(in.Lines)
	out := Breakdown{Lines: make([]LineTotals, n), TaxMode: in.Tax.ModeFor(in.Destination)}
	subtotals := make([]int64, n)
	for i, l := range in.Lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return Breakdown{}, fmt.Errorf("calculate totals: invalid line %s", l.ProductID)
		}
		subtotals[i] = l.UnitPrice * int64(l.Quantity)
		out.Lines[i].LineSubtotal = subtotals[i]
		out.Subtotal += subtotals[i]
	}

	if in.Coupon != nil {
		out.Discount = in.Coupon.Discount(out.Subtotal)
	}
	taxable := make([]int64, n)
	for i, d := range Allocate(out.Discount, subtotals) {
		out.Lines[i].Discount = d
		taxable[i] = subtotals[i] - d
	}

	for _, slab := range groupByRate(in.Lines, in.Tax) {
		weights := make([]int64, len(slab.lines))
		var amount int64
		for k, i := range slab.lines {
			weights[k] = taxable[i]
			amount += taxable[i]
		}
		res := ComputeTax(amount, in.Destination, in.Lines[slab.lines[0]].HSNCode, in.Tax)

		cgst := Allocate(res.Components.CGST, weights)
		sgst := Allocate(res.Components.SGST, weights)
		igst := Allocate(res.Components.IGST, weights)
		for k, i := range slab.lines {
			lt := &out.Lines[i]
			lt.TaxRateBps = res.RateBps
			lt.TaxBreakdown = domain.TaxBreakdown{CGST: cgst[k], SGST: sgst[k], IGST: igst[k]}
			lt.Tax = lt.TaxBreakdown.Total()
		}
		out.Tax += res.Total
		out.TaxBreakdown = out.TaxBreakdown.Add(res.Components)
	}

	out.ShippingFee = ShippingFee(in.Shipping, out.Subtotal)
	out.CODFee = CODFee(in.Shipping, in.PaymentMethod)
	for i, s := range Allocate(out.ShippingFee+out.CODFee, subtotals) {
		out.Lines[i].Shipping = s
	}

	for i := range out.Lines {
		lt := &out.Lines[i]
		lt.Total = lt.LineSubtotal - lt.Discount + lt.Tax + lt.Shipping
	}
	out.GrandTotal = out.Subtotal - out.Discount + out.Tax + out.ShippingFee + out.CODFee
	return out, nil
}

type rateSlab struct {
	rate  int64
	lines []int
}

// groupByRate groups line indexes by tax rate in order of first appearance.
func groupByRate(lines []Line, rules TaxRules) []rateSlab {
	var slabs []rateSlab
	index := make(map[int64]int)
	for i, l := range lines {
		rate := rules.RateFor(l.HSNCode)
		k, ok := index[rate]
		if !ok {
			k = len(slabs)
			index[rate] = k
			slabs = append(slabs, rateSlab{rate: rate})
		}
		slabs[k].lines = append(slabs[k].lines, i)
	}
	return slabs
}
