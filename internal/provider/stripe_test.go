package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletap/internal/model"
)

const stripeTestSecret = "whsec_test_secret"

func stripeSign(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifyWebhook_ValidSuccess(t *testing.T) {
	p := NewStripeProvider("", "sk_test", stripeTestSecret)

	body := []byte(`{
		"id": "evt_123",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_456", "metadata": {"order_id": "ord-789"}}}
	}`)
	sig := stripeSign(stripeTestSecret, "1717000000", body)

	ev, err := p.VerifyWebhook(body, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", ev.EventID)
	assert.Equal(t, model.EventPaymentSucceeded, ev.Kind)
	assert.Equal(t, "ord-789", ev.OrderID)
	assert.Equal(t, "pi_456", ev.ProviderRef)
}

func TestStripeVerifyWebhook_FailureMapping(t *testing.T) {
	p := NewStripeProvider("", "sk_test", stripeTestSecret)

	body := []byte(`{
		"id": "evt_200",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_456", "metadata": {"order_id": "ord-789"},
			"last_payment_error": {"message": "card declined"}}}
	}`)
	sig := stripeSign(stripeTestSecret, "1717000001", body)

	ev, err := p.VerifyWebhook(body, sig)
	require.NoError(t, err)
	assert.Equal(t, model.EventPaymentFailed, ev.Kind)
	assert.Equal(t, "card declined", ev.Reason)
}

func TestStripeVerifyWebhook_RefundUsesIntentRef(t *testing.T) {
	p := NewStripeProvider("", "sk_test", stripeTestSecret)

	body := []byte(`{
		"id": "evt_300",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1", "payment_intent": "pi_456", "metadata": {}}}
	}`)
	sig := stripeSign(stripeTestSecret, "1717000002", body)

	ev, err := p.VerifyWebhook(body, sig)
	require.NoError(t, err)
	assert.Equal(t, model.EventPaymentRefunded, ev.Kind)
	assert.Equal(t, "pi_456", ev.ProviderRef)
}

func TestStripeVerifyWebhook_BadSignature(t *testing.T) {
	p := NewStripeProvider("", "sk_test", stripeTestSecret)
	body := []byte(`{"id": "evt_123", "type": "payment_intent.succeeded"}`)

	cases := []string{
		stripeSign("wrong_secret", "1717000000", body),
		"t=1717000000,v1=deadbeef",
		"v1=abcdef",
		"",
		"garbage",
	}
	for _, sig := range cases {
		_, err := p.VerifyWebhook(body, sig)
		assert.ErrorIs(t, err, ErrSignatureVerification, "sig %q", sig)
	}
}

func TestStripeVerifyWebhook_TamperedBody(t *testing.T) {
	p := NewStripeProvider("", "sk_test", stripeTestSecret)

	body := []byte(`{"id": "evt_123", "type": "payment_intent.succeeded", "data": {"object": {"id": "pi_1"}}}`)
	sig := stripeSign(stripeTestSecret, "1717000000", body)

	tampered := []byte(`{"id": "evt_123", "type": "payment_intent.succeeded", "data": {"object": {"id": "pi_EVIL"}}}`)
	_, err := p.VerifyWebhook(tampered, sig)
	assert.ErrorIs(t, err, ErrSignatureVerification)
}

func TestStripeVerifyWebhook_SignedGarbageBody(t *testing.T) {
	p := NewStripeProvider("", "sk_test", stripeTestSecret)

	body := []byte(`{"id": "evt_123", "type": `)
	sig := stripeSign(stripeTestSecret, "1717000000", body)

	_, err := p.VerifyWebhook(body, sig)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestStripeVerifyWebhook_UnhandledType(t *testing.T) {
	p := NewStripeProvider("", "sk_test", stripeTestSecret)

	body := []byte(`{"id": "evt_400", "type": "customer.created", "data": {"object": {}}}`)
	sig := stripeSign(stripeTestSecret, "1717000003", body)

	_, err := p.VerifyWebhook(body, sig)
	assert.ErrorIs(t, err, ErrUnhandledEvent)
}

func TestStripeCreatePayment(t *testing.T) {
	var gotIdempotencyKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "4200", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "ord-1", r.PostForm.Get("metadata[order_id]"))

		json.NewEncoder(w).Encode(map[string]string{
			"id":            "pi_1",
			"client_secret": "pi_1_secret",
			"status":        "requires_payment_method",
		})
	}))
	defer srv.Close()

	p := NewStripeProvider(srv.URL, "sk_test", stripeTestSecret)
	res, err := p.CreatePayment(context.Background(), CreateRequest{
		OrderID: "ord-1", AmountCents: 4200, Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", res.ProviderRef)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	assert.Equal(t, "order-ord-1", gotIdempotencyKey)
}

func TestStripeConfirmPayment_NotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewStripeProvider(srv.URL, "sk_test", stripeTestSecret)
	res, err := p.ConfirmPayment(context.Background(), "pi_missing")
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, "unknown payment intent", res.FailureReason)
}

func TestStripeConfirmPayment_Succeeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"id": "pi_1", "status": "succeeded"})
	}))
	defer srv.Close()

	p := NewStripeProvider(srv.URL, "sk_test", stripeTestSecret)
	res, err := p.ConfirmPayment(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
}

func TestStripeSupportedMethods(t *testing.T) {
	p := NewStripeProvider("", "sk_test", stripeTestSecret)

	assert.NotEmpty(t, p.SupportedMethods("US", "USD"))
	assert.Empty(t, p.SupportedMethods("EG", "USD"))
	assert.Empty(t, p.SupportedMethods("US", "XXX"))
}
