package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletap/internal/model"
	"tabletap/internal/provider"
	"tabletap/internal/service"
)

type appliedEvent struct {
	orderID string
	kind    model.EventKind
	reason  string
	key     string
}

type fakeTransitioner struct {
	applied []appliedEvent
	err     error
}

func (f *fakeTransitioner) Transition(ctx context.Context, orderID string, ev model.Event, key string) (*model.Order, error) {
	f.applied = append(f.applied, appliedEvent{orderID: orderID, kind: ev.Kind, reason: ev.Reason, key: key})
	if f.err != nil {
		return nil, f.err
	}
	return &model.Order{ID: orderID}, nil
}

type fakeAttempts struct {
	stale     []model.PaymentAttempt
	cancelled []string
}

func (f *fakeAttempts) ListStaleCreated(ctx context.Context, olderThan time.Duration, limit int) ([]model.PaymentAttempt, error) {
	return f.stale, nil
}

func (f *fakeAttempts) CancelAttempt(ctx context.Context, attemptID string) error {
	f.cancelled = append(f.cancelled, attemptID)
	return nil
}

// fakeProvider answers ConfirmPayment with a canned verdict.
type fakeProvider struct {
	name         string
	confirm      provider.ConfirmResult
	confirmCalls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) CreatePayment(ctx context.Context, req provider.CreateRequest) (*provider.CreateResult, error) {
	return nil, errors.New("not supported")
}

func (p *fakeProvider) ConfirmPayment(ctx context.Context, providerRef string) (*provider.ConfirmResult, error) {
	p.confirmCalls++
	r := p.confirm
	return &r, nil
}

func (p *fakeProvider) SupportedMethods(country, currency string) []model.PaymentMethod {
	return []model.PaymentMethod{model.MethodCard}
}

func (p *fakeProvider) SignatureHeader() string { return "X-Signature" }

func (p *fakeProvider) VerifyWebhook(body []byte, sigHeader string) (*provider.WebhookEvent, error) {
	return nil, provider.ErrUnhandledEvent
}

func newSweeperFixture(p *fakeProvider, attempts ...model.PaymentAttempt) (*PaymentSweeper, *fakeTransitioner, *fakeAttempts) {
	orders := &fakeTransitioner{}
	payments := &fakeAttempts{stale: attempts}
	w := NewPaymentSweeper(orders, payments, provider.NewSelector(p))
	return w, orders, payments
}

func TestSweeper_ConfirmedPaymentFeedsStateMachine(t *testing.T) {
	p := &fakeProvider{name: "cardpay", confirm: provider.ConfirmResult{Succeeded: true}}
	w, orders, payments := newSweeperFixture(p,
		model.PaymentAttempt{ID: "att-1", OrderID: "ord-1", Provider: "cardpay", ProviderRef: "ref-1"},
	)

	require.NoError(t, w.processBatch(context.Background()))

	require.Len(t, orders.applied, 1)
	assert.Equal(t, appliedEvent{
		orderID: "ord-1",
		kind:    model.EventPaymentSucceeded,
		key:     "cardpay:confirm:ref-1",
	}, orders.applied[0])
	assert.Empty(t, payments.cancelled)
}

func TestSweeper_TerminalFailureFeedsStateMachine(t *testing.T) {
	tests := []struct {
		name   string
		reason string
	}{
		{"provider cancelled", "canceled"},
		{"paytabs never saw it", "transaction not found"},
		{"stripe never saw it", "unknown payment intent"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProvider{name: "cardpay", confirm: provider.ConfirmResult{FailureReason: tc.reason}}
			w, orders, _ := newSweeperFixture(p,
				model.PaymentAttempt{ID: "att-1", OrderID: "ord-1", Provider: "cardpay", ProviderRef: "ref-1"},
			)

			require.NoError(t, w.processBatch(context.Background()))

			require.Len(t, orders.applied, 1)
			assert.Equal(t, model.EventPaymentFailed, orders.applied[0].kind)
			assert.Equal(t, tc.reason, orders.applied[0].reason)
			assert.Equal(t, "cardpay:confirm-failed:ref-1", orders.applied[0].key)
		})
	}
}

func TestSweeper_PendingVerdictLeavesAttemptOpen(t *testing.T) {
	// Not succeeded, but not a terminal reason either: the guest may still be
	// on the payment page, so the attempt waits for the next sweep.
	p := &fakeProvider{name: "cardpay", confirm: provider.ConfirmResult{FailureReason: "requires_payment_method"}}
	w, orders, payments := newSweeperFixture(p,
		model.PaymentAttempt{ID: "att-1", OrderID: "ord-1", Provider: "cardpay", ProviderRef: "ref-1"},
	)

	require.NoError(t, w.processBatch(context.Background()))

	assert.Empty(t, orders.applied)
	assert.Empty(t, payments.cancelled)
	assert.Equal(t, 1, p.confirmCalls)
}

func TestSweeper_MissingRefAbandonsAttempt(t *testing.T) {
	p := &fakeProvider{name: "cardpay"}
	w, orders, payments := newSweeperFixture(p,
		model.PaymentAttempt{ID: "att-1", OrderID: "ord-1", Provider: "cardpay", ProviderRef: ""},
	)

	require.NoError(t, w.processBatch(context.Background()))

	assert.Equal(t, []string{"att-1"}, payments.cancelled)
	assert.Empty(t, orders.applied)
	assert.Equal(t, 0, p.confirmCalls, "nothing to confirm without a reference")
}

func TestSweeper_CashAttemptsSkipped(t *testing.T) {
	p := &fakeProvider{name: "cash", confirm: provider.ConfirmResult{Succeeded: true}}
	w, orders, payments := newSweeperFixture(p,
		model.PaymentAttempt{ID: "att-1", OrderID: "ord-1", Provider: "cash", ProviderRef: "cash-ord-1"},
	)

	require.NoError(t, w.processBatch(context.Background()))

	assert.Empty(t, orders.applied)
	assert.Empty(t, payments.cancelled)
	assert.Equal(t, 0, p.confirmCalls)
}

func TestSweeper_DuplicateVerdictIsNoError(t *testing.T) {
	// A webhook landed between listing and confirming; the sweep verdict
	// deduplicates at the state machine.
	p := &fakeProvider{name: "cardpay", confirm: provider.ConfirmResult{Succeeded: true}}
	w, orders, _ := newSweeperFixture(p,
		model.PaymentAttempt{ID: "att-1", OrderID: "ord-1", Provider: "cardpay", ProviderRef: "ref-1"},
	)
	orders.err = service.ErrDuplicateEvent

	assert.NoError(t, w.sweep(context.Background(),
		model.PaymentAttempt{ID: "att-1", OrderID: "ord-1", Provider: "cardpay", ProviderRef: "ref-1"}))
}
