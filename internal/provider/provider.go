package provider

import (
	"context"
	"errors"

	"tabletap/internal/model"
)

var (
	// ErrSignatureVerification means an inbound callback failed HMAC
	// verification; the order must not be touched.
	ErrSignatureVerification = errors.New("webhook signature verification failed")

	// ErrUnhandledEvent marks a verified callback whose type the provider
	// integration does not map to a payment event. Callers acknowledge and
	// drop it.
	ErrUnhandledEvent = errors.New("unhandled webhook event type")

	// ErrMalformedPayload marks a callback that passed signature verification
	// but whose body cannot be decoded. Retrying the delivery can never make
	// it decodable, so callers acknowledge and drop it.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

type CreateRequest struct {
	OrderID     string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

type CreateResult struct {
	ProviderRef  string
	RedirectURL  string
	ClientSecret string
}

type ConfirmResult struct {
	Succeeded     bool
	FailureReason string
}

// WebhookEvent is a verified, provider-neutral payment event. EventID is the
// provider's own event/transaction identifier and is the basis for the
// idempotency key, so replayed deliveries of the same event are no-ops.
type WebhookEvent struct {
	EventID     string
	Kind        model.EventKind
	OrderID     string // embedded order id, may be empty
	ProviderRef string
	Reason      string
}

// Provider is the uniform capability set over heterogeneous payment
// backends.
//
// CreatePayment must be side-effect-idempotent when called twice with the
// same OrderID while no attempt has succeeded; implementations key the
// remote request on the order id. ConfirmPayment never returns an error for
// a reference the backend does not know; it reports Succeeded=false with a
// reason, keeping reconciliation robust to provider-side eventual
// consistency.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	ConfirmPayment(ctx context.Context, providerRef string) (*ConfirmResult, error)
	SupportedMethods(country, currency string) []model.PaymentMethod
	SignatureHeader() string
	VerifyWebhook(body []byte, sigHeader string) (*WebhookEvent, error)
}
