package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tabletap/internal/model"
)

var paytabsCountries = map[string]bool{
	"AE": true, "SA": true, "EG": true, "JO": true,
	"KW": true, "OM": true, "QA": true, "BH": true,
}

var paytabsCurrencies = map[string]bool{
	"AED": true, "SAR": true, "EGP": true, "USD": true,
	"JOD": true, "KWD": true, "OMR": true, "QAR": true, "BHD": true,
}

type PayTabsProvider struct {
	baseURL     string
	profileID   string
	serverKey   string
	callbackURL string
	client      *http.Client
}

func NewPayTabsProvider(baseURL, profileID, serverKey, callbackURL string) *PayTabsProvider {
	if baseURL == "" {
		baseURL = "https://secure.paytabs.com"
	}
	return &PayTabsProvider{
		baseURL:     strings.TrimRight(baseURL, "/"),
		profileID:   profileID,
		serverKey:   serverKey,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PayTabsProvider) Name() string { return "paytabs" }

func (p *PayTabsProvider) SupportedMethods(country, currency string) []model.PaymentMethod {
	if !paytabsCountries[strings.ToUpper(country)] {
		return nil
	}
	if !paytabsCurrencies[strings.ToUpper(currency)] {
		return nil
	}
	return []model.PaymentMethod{model.MethodCard}
}

type paytabsCreateRequest struct {
	ProfileID    string `json:"profile_id"`
	TranType     string `json:"tran_type"`
	TranClass    string `json:"tran_class"`
	CartID       string `json:"cart_id"`
	CartCurrency string `json:"cart_currency"`
	CartAmount   string `json:"cart_amount"`
	Callback     string `json:"callback,omitempty"`
}

type paytabsCreateResponse struct {
	TranRef     string `json:"tran_ref"`
	RedirectURL string `json:"redirect_url"`
}

// CreatePayment keys the hosted-page request on cart_id = order id, so a
// repeated call for the same unpaid order resumes the same cart.
func (p *PayTabsProvider) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	payload := paytabsCreateRequest{
		ProfileID:    p.profileID,
		TranType:     "sale",
		TranClass:    "ecom",
		CartID:       req.OrderID,
		CartCurrency: strings.ToUpper(req.Currency),
		CartAmount:   centsToDecimal(req.AmountCents),
		Callback:     p.callbackURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/payment/request", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", p.serverKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("paytabs create: unexpected status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var out paytabsCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &CreateResult{ProviderRef: out.TranRef, RedirectURL: out.RedirectURL}, nil
}

type paytabsQueryResponse struct {
	TranRef       string `json:"tran_ref"`
	CartID        string `json:"cart_id"`
	PaymentResult struct {
		ResponseStatus  string `json:"response_status"`
		ResponseMessage string `json:"response_message"`
	} `json:"payment_result"`
}

func (p *PayTabsProvider) ConfirmPayment(ctx context.Context, providerRef string) (*ConfirmResult, error) {
	body, err := json.Marshal(map[string]string{
		"profile_id": p.profileID,
		"tran_ref":   providerRef,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/payment/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", p.serverKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return &ConfirmResult{Succeeded: false, FailureReason: "transaction not found"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("paytabs query: unexpected status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var out paytabsQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if out.PaymentResult.ResponseStatus == "A" {
		return &ConfirmResult{Succeeded: true}, nil
	}
	return &ConfirmResult{Succeeded: false, FailureReason: out.PaymentResult.ResponseMessage}, nil
}

func (p *PayTabsProvider) SignatureHeader() string { return "Signature" }

type paytabsWebhookPayload struct {
	TranRef       string `json:"tran_ref"`
	TranType      string `json:"tran_type"`
	CartID        string `json:"cart_id"`
	PaymentResult struct {
		ResponseStatus  string `json:"response_status"`
		ResponseMessage string `json:"response_message"`
	} `json:"payment_result"`
}

// VerifyWebhook checks the Signature header, a hex HMAC-SHA256 of the raw
// body under the server key. PayTabs has no separate event id, so the
// idempotency identity is tran_ref plus the reported status.
func (p *PayTabsProvider) VerifyWebhook(body []byte, sigHeader string) (*WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(p.serverKey))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(strings.TrimSpace(sigHeader))
	if err != nil || !hmac.Equal(expected, got) {
		return nil, ErrSignatureVerification
	}

	var raw paytabsWebhookPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := &WebhookEvent{
		EventID:     raw.TranRef + ":" + raw.PaymentResult.ResponseStatus,
		OrderID:     raw.CartID,
		ProviderRef: raw.TranRef,
	}

	if raw.TranType == "refund" {
		ev.Kind = model.EventPaymentRefunded
		return ev, nil
	}

	switch raw.PaymentResult.ResponseStatus {
	case "A": // authorized
		ev.Kind = model.EventPaymentSucceeded
	case "D", "E", "X": // declined, error, expired
		ev.Kind = model.EventPaymentFailed
		ev.Reason = raw.PaymentResult.ResponseMessage
	default:
		return nil, ErrUnhandledEvent
	}

	return ev, nil
}

func centsToDecimal(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
