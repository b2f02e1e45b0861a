// Package payment verifies gateway webhook deliveries and normalizes them into
// domain.PaymentEvent values. Verification never touches order state.
package payment

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/utafrali/ordercore/internal/domain"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// Verifier authenticates a raw webhook body for one gateway and decodes it.
type Verifier interface {
	Gateway() string
	// Verify checks the signature over payload before decoding anything.
	Verify(payload []byte, header http.Header) (*domain.PaymentEvent, error)
}

// Registry looks verifiers up by gateway name.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry registers the given verifiers. A later verifier for the same
// gateway replaces an earlier one.
func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]Verifier, len(verifiers))}
	for _, v := range verifiers {
		r.verifiers[v.Gateway()] = v
	}
	return r
}

// Get returns the verifier for gateway.
func (r *Registry) Get(gateway string) (Verifier, error) {
	v, ok := r.verifiers[gateway]
	if !ok {
		return nil, apperrors.New("UNSUPPORTED_GATEWAY",
			fmt.Sprintf("payment gateway %q is not configured", gateway),
			http.StatusNotFound,
			domain.ErrUnsupportedGateway,
		)
	}
	return v, nil
}

// Gateways lists the registered gateway names in order.
func (r *Registry) Gateways() []string {
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func invalidEvent(gateway string, err error) error {
	return apperrors.New("INVALID_PAYMENT_EVENT",
		fmt.Sprintf("%s webhook payload could not be decoded", gateway),
		http.StatusBadRequest,
		fmt.Errorf("%w: %v", domain.ErrInvalidPaymentEvent, err),
	)
}
