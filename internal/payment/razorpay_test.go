package payment

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
)

func razorpayHeader(v *RazorpayVerifier, payload, eventID string) http.Header {
	h := http.Header{}
	h.Set(RazorpaySignatureHeader, v.Sign([]byte(payload)))
	h.Set(RazorpayEventIDHeader, eventID)
	return h
}

func TestRazorpayVerifier_Captured(t *testing.T) {
	v := NewRazorpayVerifier("rzp_secret")
	payload := `{"entity":"event","event":"payment.captured","created_at":1700000000,
		"payload":{"payment":{"entity":{"id":"pay_1","amount":2509,"currency":"INR","notes":{"order_id":"o-1"}}}}}`

	ev, err := v.Verify([]byte(payload), razorpayHeader(v, payload, "evt_rzp_1"))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventSucceeded, ev.Kind)
	assert.Equal(t, "pay_1", ev.PaymentRef)
	assert.Equal(t, "o-1", ev.OrderID)
	assert.Equal(t, int64(2509), ev.Amount)
	assert.Equal(t, "razorpay:evt_rzp_1", ev.DedupKey())
}

func TestRazorpayVerifier_FailedAndRefund(t *testing.T) {
	v := NewRazorpayVerifier("rzp_secret")

	failed := `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","error_description":"bank declined"}}}}`
	ev, err := v.Verify([]byte(failed), razorpayHeader(v, failed, ""))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventFailed, ev.Kind)
	assert.Equal(t, "bank declined", ev.Reason)
	// Without an event id the key falls back to type and payment.
	assert.Equal(t, "razorpay:payment.failed:pay_1", ev.DedupKey())

	refund := `{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1","amount":300,"currency":"inr"}}}}`
	ev, err = v.Verify([]byte(refund), razorpayHeader(v, refund, "evt_rzp_2"))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventRefunded, ev.Kind)
	assert.Equal(t, "pay_1", ev.PaymentRef)
	assert.Equal(t, int64(300), ev.Amount)
	assert.True(t, ev.PerRefund)
}

func TestRazorpayVerifier_RefundPrefersCumulativePaymentAmount(t *testing.T) {
	v := NewRazorpayVerifier("rzp_secret")
	payload := `{"event":"refund.processed","payload":{
		"payment":{"entity":{"id":"pay_1","amount":2000,"amount_refunded":800}},
		"refund":{"entity":{"id":"rfnd_2","payment_id":"pay_1","amount":300}}}}`

	ev, err := v.Verify([]byte(payload), razorpayHeader(v, payload, "evt_rzp_3"))
	require.NoError(t, err)
	assert.Equal(t, int64(800), ev.Amount)
	assert.False(t, ev.PerRefund)
}

func TestRazorpayVerifier_RejectsBadSignature(t *testing.T) {
	v := NewRazorpayVerifier("rzp_secret")
	payload := `{"event":"payment.captured"}`

	h := http.Header{}
	h.Set(RazorpaySignatureHeader, NewRazorpayVerifier("other").Sign([]byte(payload)))
	_, err := v.Verify([]byte(payload), h)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	h.Set(RazorpaySignatureHeader, "not-hex")
	_, err = v.Verify([]byte(payload), h)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	_, err = v.Verify([]byte(payload), http.Header{})
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestRazorpayVerifier_MalformedAfterValidSignature(t *testing.T) {
	v := NewRazorpayVerifier("rzp_secret")
	payload := `{"event":"payment.captured"`

	_, err := v.Verify([]byte(payload), razorpayHeader(v, payload, "x"))
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentEvent)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewStripeVerifier("s", 0), NewRazorpayVerifier("r"))
	assert.Equal(t, []string{"razorpay", "stripe"}, r.Gateways())

	v, err := r.Get(domain.GatewayStripe)
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayStripe, v.Gateway())

	_, err = r.Get("paypal")
	assert.ErrorIs(t, err, domain.ErrUnsupportedGateway)
}
