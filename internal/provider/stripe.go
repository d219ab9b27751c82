package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tabletap/internal/model"
)

// stripeUnsupportedCountries lists countries Stripe cannot charge in with
// our account configuration.
var stripeUnsupportedCountries = map[string]bool{
	"EG": true,
	"IQ": true,
}

var stripeCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "CAD": true,
	"AUD": true, "AED": true, "SAR": true,
}

type StripeProvider struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

func NewStripeProvider(baseURL, apiKey, webhookSecret string) *StripeProvider {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeProvider{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) SupportedMethods(country, currency string) []model.PaymentMethod {
	if stripeUnsupportedCountries[strings.ToUpper(country)] {
		return nil
	}
	if !stripeCurrencies[strings.ToUpper(currency)] {
		return nil
	}
	return []model.PaymentMethod{model.MethodCard}
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	LastError    *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (p *StripeProvider) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", req.AmountCents))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[order_id]", req.OrderID)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// Keying the remote call on the order id makes a double-submit return
	// the intent created by the first call.
	httpReq.Header.Set("Idempotency-Key", "order-"+req.OrderID)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stripe create intent: unexpected status %d, body: %s", resp.StatusCode, string(body))
	}

	var intent stripeIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &CreateResult{ProviderRef: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (p *StripeProvider) ConfirmPayment(ctx context.Context, providerRef string) (*ConfirmResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/v1/payment_intents/"+url.PathEscape(providerRef), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &ConfirmResult{Succeeded: false, FailureReason: "unknown payment intent"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stripe confirm: unexpected status %d, body: %s", resp.StatusCode, string(body))
	}

	var intent stripeIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if intent.Status == "succeeded" {
		return &ConfirmResult{Succeeded: true}, nil
	}
	reason := intent.Status
	if intent.LastError != nil && intent.LastError.Message != "" {
		reason = intent.LastError.Message
	}
	return &ConfirmResult{Succeeded: false, FailureReason: reason}, nil
}

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

type stripeWebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
			PaymentIntent string `json:"payment_intent"`
			LastError     *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks the Stripe-Signature header (t=timestamp,v1=hex HMAC
// of "<t>.<body>") and maps the event to a payment event.
func (p *StripeProvider) VerifyWebhook(body []byte, sigHeader string) (*WebhookEvent, error) {
	var timestamp, signature string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signature = v
		}
	}
	if timestamp == "" || signature == "" {
		return nil, ErrSignatureVerification
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, got) {
		return nil, ErrSignatureVerification
	}

	var raw stripeWebhookEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := &WebhookEvent{
		EventID:     raw.ID,
		OrderID:     raw.Data.Object.Metadata.OrderID,
		ProviderRef: raw.Data.Object.ID,
	}

	switch raw.Type {
	case "payment_intent.succeeded":
		ev.Kind = model.EventPaymentSucceeded
	case "payment_intent.payment_failed":
		ev.Kind = model.EventPaymentFailed
		if raw.Data.Object.LastError != nil {
			ev.Reason = raw.Data.Object.LastError.Message
		}
	case "charge.refunded":
		ev.Kind = model.EventPaymentRefunded
		// Refunds arrive on the charge object; the intent ref lives in
		// payment_intent.
		if raw.Data.Object.PaymentIntent != "" {
			ev.ProviderRef = raw.Data.Object.PaymentIntent
		}
	default:
		return nil, ErrUnhandledEvent
	}

	return ev, nil
}
