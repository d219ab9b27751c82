package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tabletap/internal/model"
	"tabletap/internal/provider"
)

var (
	ErrOrderAlreadyPaid = errors.New("order already has a successful payment")
	ErrAmountMismatch   = errors.New("amount does not match order total")
)

type PaymentService struct {
	db       *sql.DB
	selector *provider.Selector
	orders   OrderStore
}

func NewPaymentService(db *sql.DB, selector *provider.Selector, orders OrderStore) *PaymentService {
	return &PaymentService{db: db, selector: selector, orders: orders}
}

type CreateIntentRequest struct {
	OrderID           string `json:"order_id"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	Country           string `json:"country"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
}

type IntentResult struct {
	Provider     string `json:"provider"`
	ProviderRef  string `json:"provider_ref"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// CreateIntent selects a provider once and opens a payment attempt. The
// attempt row is written before the remote call, so a timed-out call leaves
// at most a CREATED attempt and no order state changes until a confirmation
// or webhook reports success. No lock is held across the provider I/O.
func (s *PaymentService) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResult, error) {
	var totalCents int64
	var paymentStatus model.PaymentStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT total_cents, payment_status FROM orders WHERE id = $1`, req.OrderID,
	).Scan(&totalCents, &paymentStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if req.AmountCents != totalCents {
		return nil, ErrAmountMismatch
	}

	var succeeded int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_attempts WHERE order_id = $1 AND outcome = 'SUCCEEDED'`,
		req.OrderID,
	).Scan(&succeeded)
	if err != nil {
		return nil, fmt.Errorf("check attempts: %w", err)
	}
	if succeeded > 0 || paymentStatus == model.PaymentPaid {
		return nil, ErrOrderAlreadyPaid
	}

	p, err := s.selector.Select(req.Country, req.Currency, req.PreferredProvider)
	if err != nil {
		return nil, err
	}

	attemptID := uuid.NewString()

	// A retry after a failed attempt reopens the payment through the state
	// machine, so the reopen is recorded and broadcast like any other event.
	if paymentStatus == model.PaymentFailed {
		_, err = s.orders.Transition(ctx, req.OrderID,
			model.Event{Kind: model.EventPaymentRetried}, "retry:"+attemptID)
		if err != nil && !errors.Is(err, ErrDuplicateEvent) {
			return nil, fmt.Errorf("reopen payment: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payment_attempts (id, order_id, provider, amount_cents, currency)
		VALUES ($1, $2, $3, $4, $5)`,
		attemptID, req.OrderID, p.Name(), req.AmountCents, req.Currency,
	)
	if err != nil {
		return nil, fmt.Errorf("open payment attempt: %w", err)
	}

	created, err := p.CreatePayment(ctx, provider.CreateRequest{
		OrderID:     req.OrderID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment with %s: %w", p.Name(), err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE payment_attempts SET provider_ref = $1 WHERE id = $2`,
		created.ProviderRef, attemptID,
	)
	if err != nil {
		return nil, fmt.Errorf("record provider ref: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE orders SET payment_intent_ref = $1 WHERE id = $2`,
		created.ProviderRef, req.OrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("record intent ref: %w", err)
	}

	return &IntentResult{
		Provider:     p.Name(),
		ProviderRef:  created.ProviderRef,
		RedirectURL:  created.RedirectURL,
		ClientSecret: created.ClientSecret,
	}, nil
}

// ListStaleCreated returns attempts still CREATED after the cutoff, for the
// sweeper to reconcile against the provider.
func (s *PaymentService) ListStaleCreated(ctx context.Context, olderThan time.Duration, limit int) ([]model.PaymentAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, provider, provider_ref, amount_cents, currency, outcome, created_at
		FROM payment_attempts
		WHERE outcome = 'CREATED' AND created_at < NOW() - $1::interval
		ORDER BY created_at ASC
		LIMIT $2`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.PaymentAttempt
	for rows.Next() {
		var a model.PaymentAttempt
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Provider, &a.ProviderRef, &a.AmountCents, &a.Currency, &a.Outcome, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return attempts, nil
}

// CancelAttempt abandons an attempt that never got a provider reference.
func (s *PaymentService) CancelAttempt(ctx context.Context, attemptID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payment_attempts SET outcome = $1 WHERE id = $2 AND outcome = 'CREATED'`,
		model.AttemptCancelled, attemptID,
	)
	if err != nil {
		return fmt.Errorf("cancel attempt: %w", err)
	}
	return nil
}
