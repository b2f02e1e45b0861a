package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/pkg/httputil"
)

// WebhookHandler receives payment gateway notifications.
type WebhookHandler struct {
	reconciler *service.Reconciler
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook HTTP handler.
func NewWebhookHandler(reconciler *service.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// WebhookAck is returned for every notification the service accepted,
// including replays and events it chose to ignore.
type WebhookAck struct {
	Outcome string `json:"outcome"`
}

// Receive handles POST /api/v1/payments/webhook/{gateway}. The body is read
// raw since signatures are computed over the exact bytes.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "PAYLOAD_TOO_LARGE", Message: "webhook payload too large"},
			})
			return
		}
		httputil.WriteValidationError(w, err)
		return
	}

	outcome, err := h.reconciler.HandleWebhook(r.Context(), chi.URLParam(r, "gateway"), payload, r.Header)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: WebhookAck{Outcome: outcome}})
}
