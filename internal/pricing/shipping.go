package pricing

import "github.com/utafrali/ordercore/internal/domain"

// ShippingFee returns the delivery charge for an order subtotal.
func ShippingFee(policy domain.ShippingPolicy, subtotal int64) int64 {
	if policy.FreeShippingAbove > 0 && subtotal > policy.FreeShippingAbove {
		return 0
	}
	return policy.FlatRate
}

// CODFee returns the cash-on-delivery surcharge for method.
func CODFee(policy domain.ShippingPolicy, method string) int64 {
	if method == domain.PaymentMethodCOD {
		return policy.CODFee
	}
	return 0
}
