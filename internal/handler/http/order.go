package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/pkg/httputil"
	"github.com/utafrali/ordercore/pkg/middleware"
	"github.com/utafrali/ordercore/pkg/pagination"
)

// SessionHeader carries the client session that owns coupon locks taken
// during checkout.
const SessionHeader = "X-Session-ID"

const (
	paymentMethodCOD    = "cod"
	paymentMethodOnline = "online"
)

// OrderHandler handles HTTP requests for the caller's own orders.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// PlaceOrderRequest is the JSON request body for checking out the cart.
type PlaceOrderRequest struct {
	ShippingAddressID string         `json:"shipping_address_id" validate:"required"`
	BillingAddressID  string         `json:"billing_address_id"`
	CouponCode        string         `json:"coupon_code" validate:"max=64"`
	Payment           PaymentRequest `json:"payment"`
}

// PaymentRequest describes how the order is paid. Online payments name the
// gateway and the reference the client obtained from it.
type PaymentRequest struct {
	Method     string `json:"method" validate:"required,oneof=cod online"`
	Gateway    string `json:"gateway" validate:"required_if=Method online,max=32"`
	Completed  bool   `json:"completed"`
	PaymentRef string `json:"payment_ref" validate:"required_if=Method online,max=255"`
}

// CancelOrderRequest is the optional JSON request body for cancelling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ToCommand maps the request onto a placement command for userID.
func (req PlaceOrderRequest) ToCommand(userID, sessionID string) service.PlaceOrderCommand {
	cmd := service.PlaceOrderCommand{
		UserID:            userID,
		SessionID:         sessionID,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		CouponCode:        req.CouponCode,
		PaymentMethod:     domain.PaymentMethodCOD,
	}
	if req.Payment.Method == paymentMethodOnline {
		cmd.PaymentMethod = req.Payment.Gateway
		cmd.PaymentCompleted = req.Payment.Completed
		cmd.PaymentRef = req.Payment.PaymentRef
	}
	return cmd
}

// --- Handlers ---

// PlaceOrder handles POST /api/v1/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, http.StatusCreated)
}

// Checkout handles POST /api/v1/orders/place. It answers 200 for clients
// written against the checkout endpoint.
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, http.StatusOK)
}

func (h *OrderHandler) placeOrder(w http.ResponseWriter, r *http.Request, status int) {
	var req PlaceOrderRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	order, err := h.service.PlaceOrder(r.Context(), req.ToCommand(userID, r.Header.Get(SessionHeader)))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: order})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	listOrders(w, r, h.service, repository.OrderFilter{UserID: &userID}, h.logger)
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id.String(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	cancelOrder(w, r, h.service, middleware.UserIDFromContext(r.Context()), h.logger)
}

// listOrders applies the page and status query parameters on top of filter.
func listOrders(w http.ResponseWriter, r *http.Request, svc *service.OrderService, filter repository.OrderFilter, logger *slog.Logger) {
	params := pagination.FromRequest(r)
	filter.Page = params.Page
	filter.PerPage = params.PerPage
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = &status
	}

	orders, total, err := svc.ListOrders(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(orders, total, params))
}

func cancelOrder(w http.ResponseWriter, r *http.Request, svc *service.OrderService, userID string, logger *slog.Logger) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req CancelOrderRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	order, err := svc.CancelOrder(r.Context(), id.String(), userID, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
