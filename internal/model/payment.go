package model

import "time"

type AttemptOutcome string

const (
	AttemptCreated   AttemptOutcome = "CREATED"
	AttemptSucceeded AttemptOutcome = "SUCCEEDED"
	AttemptFailed    AttemptOutcome = "FAILED"
	AttemptCancelled AttemptOutcome = "CANCELLED"
)

// PaymentAttempt is one provider interaction for an order. An order may
// accumulate several attempts, but at most one may ever succeed.
type PaymentAttempt struct {
	ID          string         `json:"id"`
	OrderID     string         `json:"order_id"`
	Provider    string         `json:"provider"`
	ProviderRef string         `json:"provider_ref,omitempty"`
	AmountCents int64          `json:"amount_cents"`
	Currency    string         `json:"currency"`
	Outcome     AttemptOutcome `json:"outcome"`
	CreatedAt   time.Time      `json:"created_at"`
}
