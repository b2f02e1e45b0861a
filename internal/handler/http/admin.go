package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/pkg/httputil"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// AdminHandler serves the back-office operations on orders and stock.
type AdminHandler struct {
	orders    *service.OrderService
	inventory *service.InventoryService
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(orders *service.OrderService, inventory *service.InventoryService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{orders: orders, inventory: inventory, logger: logger}
}

// --- Request DTOs ---

// ShipOrderRequest is the JSON request body for handing an order to a carrier.
type ShipOrderRequest struct {
	Carrier        string `json:"carrier" validate:"required,max=100"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

// RefundOrderRequest is the JSON request body for refunding an order.
// Amount is in minor currency units.
type RefundOrderRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"max=500"`
}

// RestockRequest is the JSON request body for adjusting on-hand stock.
// Negative quantities write stock off.
type RestockRequest struct {
	Quantity int `json:"quantity" validate:"required,ne=0"`
}

// --- Order handlers ---

// ListOrders handles GET /api/v1/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var filter repository.OrderFilter
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filter.UserID = &userID
	}
	listOrders(w, r, h.orders, filter, h.logger)
}

// GetOrder handles GET /api/v1/admin/orders/{id}
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id.String(), "")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// ConfirmOrder handles POST /api/v1/admin/orders/{id}/confirm
func (h *AdminHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.orders.ConfirmOrder(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// CancelOrder handles POST /api/v1/admin/orders/{id}/cancel
func (h *AdminHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	cancelOrder(w, r, h.orders, "", h.logger)
}

// ShipOrder handles POST /api/v1/admin/orders/{id}/ship
func (h *AdminHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req ShipOrderRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.orders.ShipOrder(r.Context(), id.String(), service.ShipmentInfo{
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// DeliverOrder handles POST /api/v1/admin/orders/{id}/deliver
func (h *AdminHandler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.orders.DeliverOrder(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// RefundOrder handles POST /api/v1/admin/orders/{id}/refund
func (h *AdminHandler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req RefundOrderRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.orders.RefundOrder(r.Context(), id.String(), req.Amount, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// GenerateInvoice handles POST /api/v1/admin/orders/{id}/invoice
func (h *AdminHandler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.orders.GenerateInvoice(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// --- Inventory handlers ---

// GetProduct handles GET /api/v1/admin/products/{id}
func (h *AdminHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.inventory.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: p})
}

// Restock handles POST /api/v1/admin/products/{id}/restock
func (h *AdminHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	p, err := h.inventory.Restock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: p})
}

// ListInventoryLogs handles GET /api/v1/admin/products/{id}/inventory-logs
func (h *AdminHandler) ListInventoryLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= maxLogLimit {
		limit = v
	}

	logs, err := h.inventory.ListLogs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: logs})
}
