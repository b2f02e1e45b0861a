package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/payment"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
	"github.com/utafrali/ordercore/pkg/tracing"
)

// maxStaleRetries bounds how often an event is re-applied after losing a
// race with a concurrent update of the same order.
const maxStaleRetries = 3

var errDuplicateEvent = errors.New("duplicate payment event")

// Reconciler applies verified payment events to orders exactly once.
type Reconciler struct {
	uow      repository.UnitOfWork
	store    repository.Store
	gateways *payment.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler creates a new Reconciler.
func NewReconciler(uow repository.UnitOfWork, store repository.Store, gateways *payment.Registry, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		uow:      uow,
		store:    store,
		gateways: gateways,
		logger:   logger,
		now:      utcNow,
	}
}

// HandleWebhook verifies a raw gateway notification and processes it. A
// signature failure is returned before anything is read or written.
func (r *Reconciler) HandleWebhook(ctx context.Context, gateway string, payload []byte, header http.Header) (string, error) {
	verifier, err := r.gateways.Get(gateway)
	if err != nil {
		return "", err
	}
	ev, err := verifier.Verify(payload, header)
	if err != nil {
		r.logger.WarnContext(ctx, "webhook rejected",
			slog.String("gateway", gateway),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return r.Process(ctx, ev)
}

// Process applies ev and records it under its dedup key. It returns the
// outcome; a replayed event yields WebhookOutcomeDuplicate and changes
// nothing.
func (r *Reconciler) Process(ctx context.Context, ev *domain.PaymentEvent) (outcome string, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "Reconciler.Process",
		attribute.String("payment.gateway", ev.Gateway),
		attribute.String("payment.event_type", ev.RawType),
	)
	defer func() {
		span.SetAttributes(attribute.String("payment.outcome", outcome))
		tracing.EndSpan(span, err)
	}()

	r.logger.InfoContext(ctx, "webhook_received",
		slog.String("gateway", ev.Gateway),
		slog.String("event_id", ev.EventID),
		slog.String("event_type", ev.RawType),
		slog.String("kind", ev.Kind),
	)

	var t *applied
	for attempt := 1; ; attempt++ {
		t, err = r.processOnce(ctx, ev)
		if !errors.Is(err, domain.ErrStaleOrder) || attempt == maxStaleRetries {
			break
		}
	}

	switch {
	case errors.Is(err, errDuplicateEvent):
		outcome = domain.WebhookOutcomeDuplicate
		r.logger.InfoContext(ctx, "webhook_duplicate",
			slog.String("gateway", ev.Gateway),
			slog.String("dedup_key", ev.DedupKey()),
		)
	case err != nil:
		return "", staleOrder(err, ev.OrderID)
	default:
		outcome = t.outcome
		r.logApplied(ctx, ev, t)
	}
	webhookEvents.WithLabelValues(ev.Gateway, outcome).Inc()
	return outcome, nil
}

// applied is the result of matching one event against one order.
type applied struct {
	outcome string
	orderID string
	from    string
	to      string
	note    string
}

func (r *Reconciler) processOnce(ctx context.Context, ev *domain.PaymentEvent) (*applied, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal payment event: %w", err)
	}

	var res *applied
	err = r.uow.Do(ctx, func(ctx context.Context, st repository.Store) error {
		now := r.now()
		res = &applied{outcome: domain.WebhookOutcomeIgnored}
		var (
			order *domain.Order
			eff   *effect
		)
		if ev.Kind != domain.PaymentEventIgnored {
			o, err := findOrder(ctx, st, ev)
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				res.outcome = domain.WebhookOutcomeUnmatched
			case err != nil:
				return err
			default:
				if res, eff, err = decidePaymentEvent(o, ev); err != nil {
					return err
				}
				order = o
			}
		}

		rec := &domain.WebhookRecord{
			ID:         uuid.New().String(),
			DedupKey:   ev.DedupKey(),
			Gateway:    ev.Gateway,
			EventType:  ev.RawType,
			OrderID:    res.orderID,
			Outcome:    res.outcome,
			Event:      raw,
			ReceivedAt: now,
		}
		// The record is the claim on the event: a concurrent copy fails
		// here before it touches the order.
		if err := st.Webhooks.Insert(ctx, rec); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				return errDuplicateEvent
			}
			return fmt.Errorf("record webhook: %w", err)
		}
		if eff == nil {
			return nil
		}
		return persist(ctx, st, order, res.from, now, eff)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReconcileOrphans re-drives events that arrived before their order could be
// found. Records whose order still does not exist stay unmatched.
func (r *Reconciler) ReconcileOrphans(ctx context.Context, limit int) (int, error) {
	recs, err := r.store.Webhooks.ListUnmatched(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unmatched webhooks: %w", err)
	}

	resolved := 0
	for _, rec := range recs {
		var ev domain.PaymentEvent
		if err := json.Unmarshal(rec.Event, &ev); err != nil {
			r.logger.ErrorContext(ctx, "unreadable unmatched webhook",
				slog.String("webhook_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		var res *applied
		err := r.uow.Do(ctx, func(ctx context.Context, st repository.Store) error {
			o, err := findOrder(ctx, st, &ev)
			if err != nil {
				return err
			}
			now := r.now()
			var eff *effect
			if res, eff, err = decidePaymentEvent(o, &ev); err != nil {
				return err
			}
			if err := st.Webhooks.Resolve(ctx, rec.ID, o.ID, now); err != nil {
				return err
			}
			if eff == nil {
				return nil
			}
			return persist(ctx, st, o, res.from, now, eff)
		})
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			r.logger.WarnContext(ctx, "failed to reconcile webhook",
				slog.String("webhook_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		resolved++
		webhookEvents.WithLabelValues(ev.Gateway, domain.WebhookOutcomeResolved).Inc()
		r.logApplied(ctx, &ev, res)
	}
	return resolved, nil
}

func (r *Reconciler) logApplied(ctx context.Context, ev *domain.PaymentEvent, res *applied) {
	attrs := []any{
		slog.String("gateway", ev.Gateway),
		slog.String("event_type", ev.RawType),
		slog.String("outcome", res.outcome),
	}
	if res.orderID != "" {
		attrs = append(attrs, slog.String("order_id", res.orderID))
	}
	if res.from != res.to {
		orderTransitions.WithLabelValues(res.from, res.to).Inc()
		attrs = append(attrs, slog.String("from", res.from), slog.String("to", res.to))
	}
	if res.note != "" {
		attrs = append(attrs, slog.String("note", res.note))
	}

	switch res.outcome {
	case domain.WebhookOutcomeUnmatched:
		r.logger.WarnContext(ctx, "webhook_unmatched", append(attrs, slog.String("payment_ref", ev.PaymentRef))...)
	case domain.WebhookOutcomeIgnored:
		r.logger.WarnContext(ctx, "webhook ignored", attrs...)
	default:
		r.logger.InfoContext(ctx, "webhook processed", attrs...)
	}
}

func findOrder(ctx context.Context, st repository.Store, ev *domain.PaymentEvent) (*domain.Order, error) {
	if ev.OrderID != "" {
		o, err := st.Orders.GetByID(ctx, ev.OrderID)
		if err == nil || !errors.Is(err, apperrors.ErrNotFound) || ev.PaymentRef == "" {
			return o, err
		}
	}
	if ev.PaymentRef == "" {
		return nil, apperrors.NotFound("order", "")
	}
	return st.Orders.GetByPaymentRef(ctx, ev.Gateway, ev.PaymentRef)
}

// decidePaymentEvent moves o in memory according to ev and returns the
// effect to persist, or nil when nothing changes. Events that arrive after
// the order moved past the state they target are no-ops.
func decidePaymentEvent(o *domain.Order, ev *domain.PaymentEvent) (*applied, *effect, error) {
	res := &applied{orderID: o.ID, from: o.Status, to: o.Status, outcome: domain.WebhookOutcomeNoop}
	var eff *effect

	switch ev.Kind {
	case domain.PaymentEventSucceeded:
		switch {
		case o.Status == domain.OrderStatusCancelled || o.Status == domain.OrderStatusRefunded:
			res.outcome = domain.WebhookOutcomeIgnored
			res.note = "payment captured for a closed order, refund manually"
			return res, nil, nil
		case o.Status != domain.OrderStatusCreated || o.PaymentStatus == domain.PaymentStatusPaid:
			return res, nil, nil
		}

		amount := ev.Amount
		if amount <= 0 {
			amount = o.GrandTotal - o.PaidAmount
		}
		o.PaidAmount += amount
		if o.PaidAmount < o.GrandTotal {
			o.PaymentStatus = domain.PaymentStatusPartiallyPaid
			eff = &effect{}
			break
		}
		o.PaymentStatus = domain.PaymentStatusPaid
		step, err := confirm(o)
		if err != nil {
			return nil, nil, err
		}
		eff = &effect{event: domain.EventOrderConfirmed, stock: step}

	case domain.PaymentEventFailed:
		if o.Status != domain.OrderStatusCreated || o.PaymentStatus == domain.PaymentStatusPaid {
			return res, nil, nil
		}
		reason := ev.Reason
		if reason == "" {
			reason = "payment failed"
		}
		step, err := cancel(o, reason, domain.PaymentStatusFailed)
		if err != nil {
			return nil, nil, err
		}
		eff = &effect{event: domain.EventOrderCancelled, stock: step}

	case domain.PaymentEventRefunded:
		delta := ev.Amount - o.RefundedAmount
		if ev.PerRefund {
			delta = ev.Amount
		}
		if delta <= 0 {
			return res, nil, nil
		}
		if o.PaidAmount == 0 || !o.CanTransitionTo(domain.OrderStatusRefunded) {
			res.outcome = domain.WebhookOutcomeIgnored
			res.note = "refund for an order that cannot be refunded"
			return res, nil, nil
		}
		delta = min(delta, o.Refundable())
		step, err := refund(o, delta)
		if err != nil {
			return nil, nil, err
		}
		eff = &effect{event: domain.EventOrderRefunded, refund: delta, stock: step}

	default:
		res.outcome = domain.WebhookOutcomeIgnored
		return res, nil, nil
	}

	res.outcome = domain.WebhookOutcomeApplied
	res.to = o.Status
	return res, eff, nil
}
