package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/razorpay/razorpay-go/utils"

	"github.com/utafrali/ordercore/internal/domain"
)

// Razorpay webhook headers.
const (
	RazorpaySignatureHeader = "X-Razorpay-Signature"
	RazorpayEventIDHeader   = "X-Razorpay-Event-Id"
)

// RazorpayVerifier verifies Razorpay webhooks: the signature is the hex
// HMAC-SHA256 of the raw body keyed by the webhook secret.
type RazorpayVerifier struct {
	secret string
}

// NewRazorpayVerifier creates a Razorpay verifier.
func NewRazorpayVerifier(secret string) *RazorpayVerifier {
	return &RazorpayVerifier{secret: secret}
}

func (v *RazorpayVerifier) Gateway() string { return domain.GatewayRazorpay }

type razorpayEnvelope struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity razorpayRefund `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type razorpayPayment struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountRefunded   int64             `json:"amount_refunded"`
	Currency         string            `json:"currency"`
	Notes            map[string]string `json:"notes"`
	ErrorDescription string            `json:"error_description"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// Sign returns the signature Razorpay would send for payload. Used to sign
// simulated deliveries.
func (v *RazorpayVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks X-Razorpay-Signature and maps payment.captured,
// payment.failed and refund.processed.
func (v *RazorpayVerifier) Verify(payload []byte, header http.Header) (*domain.PaymentEvent, error) {
	sig := strings.TrimSpace(header.Get(RazorpaySignatureHeader))
	if sig == "" || !utils.VerifyWebhookSignature(string(payload), sig, v.secret) {
		return nil, domain.SignatureInvalid(domain.GatewayRazorpay)
	}

	var env razorpayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, invalidEvent(domain.GatewayRazorpay, err)
	}

	ev := &domain.PaymentEvent{
		Gateway:    domain.GatewayRazorpay,
		EventID:    header.Get(RazorpayEventIDHeader),
		RawType:    env.Event,
		Kind:       domain.PaymentEventIgnored,
		OccurredAt: time.Unix(env.CreatedAt, 0).UTC(),
	}

	var pay *razorpayPayment
	if env.Payload.Payment != nil {
		pay = &env.Payload.Payment.Entity
		ev.PaymentRef = pay.ID
		ev.OrderID = pay.Notes[orderMetadataKey]
		ev.Currency = strings.ToUpper(pay.Currency)
	}

	switch env.Event {
	case "payment.captured":
		if pay == nil {
			return nil, invalidEvent(domain.GatewayRazorpay, errMissingEntity("payment"))
		}
		ev.Kind = domain.PaymentEventSucceeded
		ev.Amount = pay.Amount
	case "payment.failed":
		if pay == nil {
			return nil, invalidEvent(domain.GatewayRazorpay, errMissingEntity("payment"))
		}
		ev.Kind = domain.PaymentEventFailed
		ev.Reason = pay.ErrorDescription
	case "refund.processed":
		ev.Kind = domain.PaymentEventRefunded
		switch {
		case pay != nil:
			ev.Amount = pay.AmountRefunded
		case env.Payload.Refund != nil:
			// Only this refund's amount is known, not the running total.
			r := env.Payload.Refund.Entity
			ev.PaymentRef = r.PaymentID
			ev.Amount = r.Amount
			ev.PerRefund = true
			ev.Currency = strings.ToUpper(r.Currency)
		default:
			return nil, invalidEvent(domain.GatewayRazorpay, errMissingEntity("refund"))
		}
	}

	return ev, nil
}

type errMissingEntity string

func (e errMissingEntity) Error() string { return "payload has no " + string(e) + " entity" }
