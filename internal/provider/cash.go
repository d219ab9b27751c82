package provider

import (
	"context"

	"tabletap/internal/model"
)

// CashProvider is the null provider: no remote backend, no webhooks. The
// payment is settled by staff at the table or counter.
type CashProvider struct{}

func NewCashProvider() *CashProvider { return &CashProvider{} }

func (p *CashProvider) Name() string { return "cash" }

func (p *CashProvider) SupportedMethods(country, currency string) []model.PaymentMethod {
	return []model.PaymentMethod{model.MethodCash}
}

// CreatePayment derives the reference from the order id, so it is trivially
// idempotent.
func (p *CashProvider) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	return &CreateResult{ProviderRef: "cash-" + req.OrderID}, nil
}

func (p *CashProvider) ConfirmPayment(ctx context.Context, providerRef string) (*ConfirmResult, error) {
	return &ConfirmResult{Succeeded: false, FailureReason: "cash settlement is recorded by staff"}, nil
}

func (p *CashProvider) SignatureHeader() string { return "" }

func (p *CashProvider) VerifyWebhook(body []byte, sigHeader string) (*WebhookEvent, error) {
	return nil, ErrUnhandledEvent
}
