package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tabletap/internal/broadcast"
	"tabletap/internal/model"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateEvent means the idempotency key was already applied. It is
	// treated as success by every caller; it exists so callers can skip
	// side effects.
	ErrDuplicateEvent = errors.New("event already applied")
)

// StatusMailer is the email collaborator. Delivery failures never affect the
// core.
type StatusMailer interface {
	SendStatusEmail(ctx context.Context, order model.Order, status model.OrderStatus) error
}

const orderColumns = `id, restaurant_id, table_number, status, payment_status, payment_method,
	payment_intent_ref, subtotal_cents, tax_cents, tip_cents, total_cents,
	confirmed_at, prepared_at, ready_at, delivered_at, cancelled_at, paid_at, created_at`

type OrderService struct {
	db          *sql.DB
	broadcaster broadcast.Broadcaster
	mailer      StatusMailer
}

func NewOrderService(db *sql.DB, broadcaster broadcast.Broadcaster, mailer StatusMailer) *OrderService {
	return &OrderService{db: db, broadcaster: broadcaster, mailer: mailer}
}

type CreateOrderRequest struct {
	RestaurantID  string              `json:"restaurant_id"`
	TableNumber   *int                `json:"table_number,omitempty"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	SubtotalCents int64               `json:"subtotal_cents"`
	TaxCents      int64               `json:"tax_cents"`
	TipCents      int64               `json:"tip_cents"`
}

func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	total := req.SubtotalCents + req.TaxCents + req.TipCents

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (restaurant_id, table_number, payment_method, subtotal_cents, tax_cents, tip_cents, total_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+orderColumns,
		req.RestaurantID, req.TableNumber, req.PaymentMethod,
		req.SubtotalCents, req.TaxCents, req.TipCents, total,
	)

	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (s *OrderService) GetByID(ctx context.Context, id string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// GetByProviderRef resolves an order through its payment attempts, for
// providers that echo only their own reference in callbacks.
func (s *OrderService) GetByProviderRef(ctx context.Context, providerRef string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+prefixColumns("o")+`
		FROM orders o
		JOIN payment_attempts a ON a.order_id = o.id
		WHERE a.provider_ref = $1
		ORDER BY a.created_at DESC
		LIMIT 1
	`, providerRef)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by provider ref: %w", err)
	}
	return order, nil
}

func (s *OrderService) ListByRestaurant(ctx context.Context, restaurantID string) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE restaurant_id = $1 ORDER BY created_at DESC`,
		restaurantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return orders, nil
}

// Transition applies one event to an order. The idempotency check and the
// state write are a single transaction: the key insert conflicts for a
// replayed event, and the row lock serializes concurrent transitions on the
// same order. Broadcast and email run after commit and never fail the
// transition.
func (s *OrderService) Transition(ctx context.Context, orderID string, ev model.Event, idempotencyKey string) (*model.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO order_events (order_id, idempotency_key) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		orderID, idempotencyKey,
	)
	if err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check event insert: %w", err)
	}
	if n == 0 {
		cur, getErr := s.GetByID(ctx, orderID)
		if getErr != nil {
			return nil, getErr
		}
		return cur, ErrDuplicateEvent
	}

	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	current, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	next, changed, err := model.Apply(*current, ev, time.Now())
	if err != nil {
		return nil, err
	}

	if changed {
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $1, payment_status = $2,
				confirmed_at = $3, prepared_at = $4, ready_at = $5,
				delivered_at = $6, cancelled_at = $7, paid_at = $8
			WHERE id = $9`,
			next.Status, next.PaymentStatus,
			next.ConfirmedAt, next.PreparedAt, next.ReadyAt,
			next.DeliveredAt, next.CancelledAt, next.PaidAt,
			next.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("update order: %w", err)
		}

		if err := s.settleAttempt(ctx, tx, next, ev); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if changed {
		s.notify(next, *current, ev)
	}

	return &next, nil
}

// settleAttempt records the payment attempt outcome matching a payment
// event. The partial unique index on payment_attempts guarantees at most one
// SUCCEEDED per order.
func (s *OrderService) settleAttempt(ctx context.Context, tx *sql.Tx, order model.Order, ev model.Event) error {
	var outcome model.AttemptOutcome
	switch ev.Kind {
	case model.EventPaymentSucceeded:
		outcome = model.AttemptSucceeded
	case model.EventPaymentFailed:
		outcome = model.AttemptFailed
	default:
		return nil
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE payment_attempts SET outcome = $1
		WHERE order_id = $2 AND provider_ref = $3 AND outcome = 'CREATED'`,
		outcome, order.ID, ev.ProviderRef,
	)
	if err != nil {
		return fmt.Errorf("settle payment attempt: %w", err)
	}
	return nil
}

// notify fans the applied transition out to realtime subscribers and the
// mailer. Both are fire-and-forget: the transition already committed.
func (s *OrderService) notify(next, prev model.Order, ev model.Event) {
	change := broadcast.StateChanged{Order: next, Event: ev.Kind, OccurredAt: time.Now()}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.broadcaster.Publish(ctx, change); err != nil {
			slog.Error("broadcast failed", "order", next.ID, "event", ev.Kind, "error", err)
		}
	}()

	if s.mailer != nil && next.Status != prev.Status {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.mailer.SendStatusEmail(ctx, next, next.Status); err != nil {
				slog.Error("status email failed", "order", next.ID, "status", next.Status, "error", err)
			}
		}()
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var tableNumber sql.NullInt64
	var confirmedAt, preparedAt, readyAt, deliveredAt, cancelledAt, paidAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.RestaurantID, &tableNumber, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.PaymentIntentRef, &o.SubtotalCents, &o.TaxCents, &o.TipCents, &o.TotalCents,
		&confirmedAt, &preparedAt, &readyAt, &deliveredAt, &cancelledAt, &paidAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tableNumber.Valid {
		n := int(tableNumber.Int64)
		o.TableNumber = &n
	}
	o.ConfirmedAt = nullTimePtr(confirmedAt)
	o.PreparedAt = nullTimePtr(preparedAt)
	o.ReadyAt = nullTimePtr(readyAt)
	o.DeliveredAt = nullTimePtr(deliveredAt)
	o.CancelledAt = nullTimePtr(cancelledAt)
	o.PaidAt = nullTimePtr(paidAt)

	return &o, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func prefixColumns(alias string) string {
	return alias + `.id, ` + alias + `.restaurant_id, ` + alias + `.table_number, ` + alias + `.status, ` +
		alias + `.payment_status, ` + alias + `.payment_method, ` + alias + `.payment_intent_ref, ` +
		alias + `.subtotal_cents, ` + alias + `.tax_cents, ` + alias + `.tip_cents, ` + alias + `.total_cents, ` +
		alias + `.confirmed_at, ` + alias + `.prepared_at, ` + alias + `.ready_at, ` + alias + `.delivered_at, ` +
		alias + `.cancelled_at, ` + alias + `.paid_at, ` + alias + `.created_at`
}
