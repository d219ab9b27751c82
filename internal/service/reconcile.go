package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tabletap/internal/model"
	"tabletap/internal/provider"
)

var ErrUnknownProvider = errors.New("unknown payment provider")

// OrderStore is the slice of OrderService that collaborating services
// (reconciler, payments) depend on.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*model.Order, error)
	GetByProviderRef(ctx context.Context, providerRef string) (*model.Order, error)
	Transition(ctx context.Context, orderID string, ev model.Event, idempotencyKey string) (*model.Order, error)
}

// ReconcileService turns an untrusted provider callback into a verified
// state-machine event. Everything except a signature failure is absorbed
// here: the provider must never see an error that would trigger retries of
// an event that was already safely handled or safely ignored.
type ReconcileService struct {
	selector   *provider.Selector
	orders     OrderStore
	retryDelay time.Duration
}

func NewReconcileService(selector *provider.Selector, orders OrderStore) *ReconcileService {
	return &ReconcileService{selector: selector, orders: orders, retryDelay: 2 * time.Second}
}

func (s *ReconcileService) Handle(ctx context.Context, providerName string, body []byte, sigHeader string) error {
	p, ok := s.selector.Get(providerName)
	if !ok {
		return ErrUnknownProvider
	}

	ev, err := p.VerifyWebhook(body, sigHeader)
	if err != nil {
		if errors.Is(err, provider.ErrUnhandledEvent) {
			slog.Info("ignoring unhandled webhook event", "provider", providerName)
			return nil
		}
		if errors.Is(err, provider.ErrMalformedPayload) {
			// Signed but undecodable; a redelivery would be byte-identical,
			// so erroring here would make the provider retry forever.
			slog.Warn("acknowledging malformed webhook payload", "provider", providerName, "error", err)
			return nil
		}
		// Signature failures reach the handler; no order is touched.
		return err
	}

	order, err := s.resolveOrder(ctx, ev)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			// Different environment or stale test data; the provider
			// dashboard stays the source of truth for this event.
			slog.Warn("webhook for unknown order, acknowledging",
				"provider", providerName, "event", ev.EventID, "order", ev.OrderID, "ref", ev.ProviderRef)
			return nil
		}
		return fmt.Errorf("resolve order: %w", err)
	}

	mev := model.Event{Kind: ev.Kind, ProviderRef: ev.ProviderRef, Reason: ev.Reason}
	idempotencyKey := providerName + ":" + ev.EventID

	_, err = s.orders.Transition(ctx, order.ID, mev, idempotencyKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateEvent):
		slog.Info("duplicate webhook delivery", "provider", providerName, "event", ev.EventID, "order", order.ID)
		return nil
	case errors.Is(err, model.ErrInvalidTransition):
		slog.Warn("webhook event not applicable to order state",
			"provider", providerName, "event", ev.EventID, "order", order.ID, "error", err)
		return nil
	default:
		// Storage failure: the event is not durably recorded, so a provider
		// retry is exactly what we want.
		return fmt.Errorf("apply webhook event: %w", err)
	}
}

// resolveOrder looks the order up by the id embedded in the callback, then
// by provider reference against a previously created attempt. A webhook can
// race the attempt bookkeeping, so a miss is retried once after a short
// delay.
func (s *ReconcileService) resolveOrder(ctx context.Context, ev *provider.WebhookEvent) (*model.Order, error) {
	order, err := s.lookup(ctx, ev)
	if err == nil || !errors.Is(err, ErrOrderNotFound) {
		return order, err
	}

	select {
	case <-time.After(s.retryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return s.lookup(ctx, ev)
}

func (s *ReconcileService) lookup(ctx context.Context, ev *provider.WebhookEvent) (*model.Order, error) {
	if ev.OrderID != "" {
		order, err := s.orders.GetByID(ctx, ev.OrderID)
		if err == nil || !errors.Is(err, ErrOrderNotFound) {
			return order, err
		}
	}
	if ev.ProviderRef != "" {
		return s.orders.GetByProviderRef(ctx, ev.ProviderRef)
	}
	return nil, ErrOrderNotFound
}
