package domain

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// Sentinels returned by the ledger, repositories and the state machine.
// Services translate them into AppErrors with the constructors below.
var (
	ErrOutOfStock          = errors.New("out of stock")
	ErrInventoryInvariant  = errors.New("inventory invariant violated")
	ErrProductUnavailable  = errors.New("product unavailable")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidCoupon       = errors.New("invalid coupon")
	ErrCouponInUse         = errors.New("coupon in use")
	ErrCouponExhausted     = errors.New("coupon exhausted")
	ErrCouponAlreadyUsed   = errors.New("coupon already used")
	ErrPaymentDisabled     = errors.New("payment method disabled")
	ErrPaymentRequired     = errors.New("payment required")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrStaleOrder          = errors.New("order modified concurrently")
	ErrRefundExceedsPaid   = errors.New("refund exceeds paid amount")
	ErrUnsupportedGateway  = errors.New("unsupported gateway")
	ErrInvalidPaymentEvent = errors.New("invalid payment event")
)

func OutOfStock(productID string, requested, available int) *apperrors.AppError {
	return apperrors.New("OUT_OF_STOCK",
		fmt.Sprintf("product %s: requested %d, only %d available", productID, requested, available),
		http.StatusBadRequest, ErrOutOfStock)
}

func ProductUnavailable(productID string) *apperrors.AppError {
	return apperrors.New("PRODUCT_UNAVAILABLE", fmt.Sprintf("product %s is not available", productID),
		http.StatusBadRequest, ErrProductUnavailable)
}

func InvalidAddress(message string) *apperrors.AppError {
	return apperrors.New("INVALID_ADDRESS", message, http.StatusBadRequest, ErrInvalidAddress)
}

func EmptyCart() *apperrors.AppError {
	return apperrors.New("EMPTY_CART", "cart is empty", http.StatusBadRequest, ErrEmptyCart)
}

func InvalidCoupon(message string) *apperrors.AppError {
	return apperrors.New("INVALID_COUPON", message, http.StatusBadRequest, ErrInvalidCoupon)
}

func CouponInUse(code string) *apperrors.AppError {
	return apperrors.New("COUPON_IN_USE", fmt.Sprintf("coupon %s is already being redeemed", code),
		http.StatusConflict, ErrCouponInUse)
}

func CouponExhausted(code string) *apperrors.AppError {
	return apperrors.New("COUPON_EXHAUSTED", fmt.Sprintf("coupon %s has no redemptions left", code),
		http.StatusConflict, ErrCouponExhausted)
}

func PaymentMethodDisabled(method string) *apperrors.AppError {
	return apperrors.New("PAYMENT_METHOD_DISABLED", fmt.Sprintf("payment method %s is not enabled", method),
		http.StatusConflict, ErrPaymentDisabled)
}

func PaymentRequired(message string) *apperrors.AppError {
	return apperrors.New("PAYMENT_REQUIRED", message, http.StatusConflict, ErrPaymentRequired)
}

func InvalidTransition(from, to string) *apperrors.AppError {
	return apperrors.New("INVALID_TRANSITION", fmt.Sprintf("cannot move order from %s to %s", from, to),
		http.StatusConflict, ErrInvalidTransition)
}

func SignatureInvalid(gateway string) *apperrors.AppError {
	return apperrors.New("SIGNATURE_INVALID", fmt.Sprintf("%s webhook signature verification failed", gateway),
		http.StatusBadRequest, ErrSignatureInvalid)
}

func ValidationError(message string) *apperrors.AppError {
	return apperrors.New("VALIDATION_ERROR", message, http.StatusBadRequest, apperrors.ErrInvalidInput)
}
