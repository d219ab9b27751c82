package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tabletap/internal/model"
	"tabletap/internal/provider"
	"tabletap/internal/service"
)

// terminalReasons mean an attempt is dead, not merely still pending.
var terminalReasons = map[string]bool{
	"canceled":               true,
	"transaction not found":  true,
	"unknown payment intent": true,
}

// OrderTransitioner feeds sweep verdicts through the state machine.
type OrderTransitioner interface {
	Transition(ctx context.Context, orderID string, ev model.Event, idempotencyKey string) (*model.Order, error)
}

// AttemptSource lists and abandons stale payment attempts.
type AttemptSource interface {
	ListStaleCreated(ctx context.Context, olderThan time.Duration, limit int) ([]model.PaymentAttempt, error)
	CancelAttempt(ctx context.Context, attemptID string) error
}

// PaymentSweeper reconciles payment attempts whose webhook never arrived: it
// polls stale CREATED attempts, asks the provider for the verdict, and feeds
// the result through the state machine. Idempotency keys are derived from
// the provider reference, so a late webhook for the same attempt is a no-op.
type PaymentSweeper struct {
	orders    OrderTransitioner
	payments  AttemptSource
	selector  *provider.Selector
	interval  time.Duration
	cutoff    time.Duration
	batchSize int
}

func NewPaymentSweeper(orders OrderTransitioner, payments AttemptSource, selector *provider.Selector) *PaymentSweeper {
	return &PaymentSweeper{
		orders:    orders,
		payments:  payments,
		selector:  selector,
		interval:  30 * time.Second,
		cutoff:    2 * time.Minute,
		batchSize: 10,
	}
}

func (w *PaymentSweeper) Start(ctx context.Context) {
	slog.Info("starting payment sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("payment sweeper stopped")
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				slog.Error("sweep batch failed", "error", err)
			}
		}
	}
}

func (w *PaymentSweeper) processBatch(ctx context.Context) error {
	attempts, err := w.payments.ListStaleCreated(ctx, w.cutoff, w.batchSize)
	if err != nil {
		return fmt.Errorf("list stale attempts: %w", err)
	}

	for _, attempt := range attempts {
		if err := w.sweep(ctx, attempt); err != nil {
			slog.Error("sweep attempt failed", "attempt", attempt.ID, "order", attempt.OrderID, "error", err)
		}
	}
	return nil
}

func (w *PaymentSweeper) sweep(ctx context.Context, attempt model.PaymentAttempt) error {
	// The CreatePayment call never completed; nothing to confirm remotely.
	if attempt.ProviderRef == "" {
		slog.Info("abandoning attempt without provider ref", "attempt", attempt.ID, "order", attempt.OrderID)
		return w.payments.CancelAttempt(ctx, attempt.ID)
	}

	p, ok := w.selector.Get(attempt.Provider)
	if !ok {
		return fmt.Errorf("provider %q not registered", attempt.Provider)
	}
	// Cash settles at the counter; staff confirm those orders themselves.
	if attempt.Provider == "cash" {
		return nil
	}

	result, err := p.ConfirmPayment(ctx, attempt.ProviderRef)
	if err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}

	if result.Succeeded {
		ev := model.Event{Kind: model.EventPaymentSucceeded, ProviderRef: attempt.ProviderRef}
		key := attempt.Provider + ":confirm:" + attempt.ProviderRef
		_, err := w.orders.Transition(ctx, attempt.OrderID, ev, key)
		if err != nil && !errors.Is(err, service.ErrDuplicateEvent) {
			return fmt.Errorf("apply confirmed payment: %w", err)
		}
		slog.Info("swept confirmed payment", "order", attempt.OrderID, "ref", attempt.ProviderRef)
		return nil
	}

	if terminalReasons[result.FailureReason] {
		ev := model.Event{Kind: model.EventPaymentFailed, ProviderRef: attempt.ProviderRef, Reason: result.FailureReason}
		key := attempt.Provider + ":confirm-failed:" + attempt.ProviderRef
		_, err := w.orders.Transition(ctx, attempt.OrderID, ev, key)
		if err != nil && !errors.Is(err, service.ErrDuplicateEvent) {
			return fmt.Errorf("apply failed payment: %w", err)
		}
	}
	// Still pending at the provider; check again next sweep.
	return nil
}
