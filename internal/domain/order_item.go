package domain

// Order item status constants.
const (
	ItemStatusPending   = "pending"
	ItemStatusConfirmed = "confirmed"
	ItemStatusShipped   = "shipped"
	ItemStatusDelivered = "delivered"
	ItemStatusCancelled = "cancelled"
	ItemStatusRefunded  = "refunded"
)

// OrderItem is a snapshot of a product at purchase time together with its
// share of the order-level discount, tax and shipping. Only Status changes
// after creation.
type OrderItem struct {
	ID             string       `json:"id"`
	OrderID        string       `json:"order_id"`
	ProductID      string       `json:"product_id"`
	Name           string       `json:"name"`
	SKU            string       `json:"sku"`
	HSNCode        string       `json:"hsn_code,omitempty"`
	UnitPrice      int64        `json:"unit_price"`
	Quantity       int          `json:"quantity"`
	LineSubtotal   int64        `json:"line_subtotal"`
	DiscountAmount int64        `json:"discount_amount"`
	TaxRateBps     int64        `json:"tax_rate_bps"`
	TaxAmount      int64        `json:"tax_amount"`
	TaxBreakdown   TaxBreakdown `json:"tax_breakdown"`
	ShippingAmount int64        `json:"shipping_amount"`
	Total          int64        `json:"total"`
	Status         string       `json:"status"`
}

// itemStatusFor maps an order status to the status its items take.
var itemStatusFor = map[string]string{
	OrderStatusCreated:   ItemStatusPending,
	OrderStatusConfirmed: ItemStatusConfirmed,
	OrderStatusShipped:   ItemStatusShipped,
	OrderStatusDelivered: ItemStatusDelivered,
	OrderStatusCancelled: ItemStatusCancelled,
	OrderStatusRefunded:  ItemStatusRefunded,
}

// SetStatus moves the order to status and its items along with it. Callers
// must have checked the transition with AssertTransition.
func (o *Order) SetStatus(status string) {
	o.Status = status
	if s, ok := itemStatusFor[status]; ok {
		for i := range o.Items {
			o.Items[i].Status = s
		}
	}
}
