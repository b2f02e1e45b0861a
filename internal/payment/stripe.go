package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/utafrali/ordercore/internal/domain"
)

// StripeSignatureHeader carries the timestamped signature Stripe computes
// over the raw body.
const StripeSignatureHeader = "Stripe-Signature"

// orderMetadataKey is the PaymentIntent metadata key checkout sets to our order ID.
const orderMetadataKey = "order_id"

// StripeVerifier verifies Stripe webhooks with the endpoint signing secret.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewStripeVerifier creates a Stripe verifier. A zero tolerance uses the
// library default of five minutes.
func NewStripeVerifier(secret string, tolerance time.Duration) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: tolerance}
}

func (v *StripeVerifier) Gateway() string { return domain.GatewayStripe }

// Verify checks Stripe-Signature and maps payment_intent.succeeded,
// payment_intent.payment_failed and charge.refunded. Other types come back
// with Kind ignored.
func (v *StripeVerifier) Verify(payload []byte, header http.Header) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get(StripeSignatureHeader), v.secret,
		webhook.ConstructEventOptions{
			Tolerance:                v.tolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return nil, domain.SignatureInvalid(domain.GatewayStripe)
		default:
			return nil, invalidEvent(domain.GatewayStripe, err)
		}
	}

	ev := &domain.PaymentEvent{
		Gateway:    domain.GatewayStripe,
		EventID:    event.ID,
		RawType:    string(event.Type),
		Kind:       domain.PaymentEventIgnored,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return ev, nil
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, invalidEvent(domain.GatewayStripe, err)
		}
		ev.PaymentRef = pi.ID
		ev.OrderID = pi.Metadata[orderMetadataKey]
		ev.Currency = strings.ToUpper(string(pi.Currency))
		if event.Type == stripe.EventTypePaymentIntentSucceeded {
			ev.Kind = domain.PaymentEventSucceeded
			ev.Amount = pi.AmountReceived
			if ev.Amount == 0 {
				ev.Amount = pi.Amount
			}
		} else {
			ev.Kind = domain.PaymentEventFailed
			if pi.LastPaymentError != nil {
				ev.Reason = pi.LastPaymentError.Msg
			}
		}

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, invalidEvent(domain.GatewayStripe, err)
		}
		ev.Kind = domain.PaymentEventRefunded
		ev.PaymentRef = ch.ID
		if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
			ev.PaymentRef = ch.PaymentIntent.ID
		}
		ev.OrderID = ch.Metadata[orderMetadataKey]
		ev.Amount = ch.AmountRefunded
		ev.Currency = strings.ToUpper(string(ch.Currency))
	}

	return ev, nil
}
