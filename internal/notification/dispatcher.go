// Package notification forwards order events to the platform notification
// service.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/pkg/httpclient"
)

const (
	sendPath = "/api/v1/notifications"

	// IdempotencyHeader carries the outbox event id so the notification
	// service can drop redeliveries.
	IdempotencyHeader = "Idempotency-Key"
)

// SendRequest is the body of POST /api/v1/notifications.
type SendRequest struct {
	UserID   string         `json:"user_id"`
	Type     string         `json:"type"`
	Channel  string         `json:"channel"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Priority string         `json:"priority,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Dispatcher posts order notifications through a circuit breaker.
type Dispatcher struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher for the service at baseURL.
func NewDispatcher(client *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Notify sends one order notification.
func (d *Dispatcher) Notify(ctx context.Context, eventID, eventType string, p domain.OrderEventPayload) error {
	req := buildRequest(eventType, p)
	headers := map[string]string{IdempotencyHeader: eventID}

	if err := d.client.PostJSON(ctx, d.baseURL+sendPath, req, headers); err != nil {
		return fmt.Errorf("send %s notification for order %s: %w", eventType, p.OrderID, err)
	}
	d.logger.DebugContext(ctx, "notification sent",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("order_id", p.OrderID),
	)
	return nil
}

func buildRequest(eventType string, p domain.OrderEventPayload) SendRequest {
	req := SendRequest{
		UserID:   p.UserID,
		Type:     "email",
		Channel:  "order",
		Priority: "normal",
		Metadata: map[string]any{
			"order_id":     p.OrderID,
			"order_number": p.OrderNumber,
			"event_type":   eventType,
			"status":       p.Status,
		},
	}

	switch eventType {
	case domain.EventOrderConfirmed:
		req.Subject = fmt.Sprintf("Order %s confirmed", p.OrderNumber)
		req.Body = fmt.Sprintf("Your order %s for %s %s is confirmed.", p.OrderNumber, formatAmount(p.GrandTotal), p.Currency)
	case domain.EventOrderShipped:
		req.Subject = fmt.Sprintf("Order %s shipped", p.OrderNumber)
		req.Body = fmt.Sprintf("Your order %s is on its way.", p.OrderNumber)
	case domain.EventOrderDelivered:
		req.Subject = fmt.Sprintf("Order %s delivered", p.OrderNumber)
		req.Body = fmt.Sprintf("Your order %s has been delivered.", p.OrderNumber)
	case domain.EventOrderCancelled:
		req.Subject = fmt.Sprintf("Order %s cancelled", p.OrderNumber)
		req.Body = fmt.Sprintf("Your order %s was cancelled: %s.", p.OrderNumber, p.Reason)
		req.Priority = "high"
	case domain.EventOrderRefunded:
		req.Subject = fmt.Sprintf("Refund for order %s", p.OrderNumber)
		req.Body = fmt.Sprintf("We refunded %s %s for order %s.", formatAmount(p.RefundAmount), p.Currency, p.OrderNumber)
		req.Metadata["refund_amount"] = p.RefundAmount
	default:
		req.Subject = fmt.Sprintf("Update on order %s", p.OrderNumber)
		req.Body = fmt.Sprintf("Your order %s is now %s.", p.OrderNumber, p.Status)
	}
	return req
}

// formatAmount renders minor units with two decimals.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
