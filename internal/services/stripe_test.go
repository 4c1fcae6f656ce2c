package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestStripe(handler http.HandlerFunc) (*StripeService, *httptest.Server) {
	server := httptest.NewServer(handler)
	svc := &StripeService{
		SecretKey:  "sk_test_123",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	}
	return svc, server
}

func TestStripeHeaders(t *testing.T) {
	var gotAuth, gotIdem string
	svc, server := newTestStripe(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		w.Write([]byte(`{"id":"tr_1","amount":7500,"destination":"acct_1"}`))
	})
	defer server.Close()

	transfer, err := svc.CreateTransfer(context.Background(), 75.00, "acct_1", "escrow_release_esc_abc")
	assert.NoError(t, err)
	assert.Equal(t, "tr_1", transfer.ID)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.Equal(t, "escrow_release_esc_abc", gotIdem)
}

func TestStripeAmountInCents(t *testing.T) {
	var gotBody map[string]interface{}
	svc, server := newTestStripe(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"id":"re_1","amount":4999,"status":"succeeded"}`))
	})
	defer server.Close()

	_, err := svc.CreateRefund(context.Background(), "pi_1", 49.99, "escrow_refund_esc_abc")
	assert.NoError(t, err)
	assert.Equal(t, float64(4999), gotBody["amount"])
	assert.Equal(t, "pi_1", gotBody["payment_intent"])
}

func TestStripeErrorNormalization(t *testing.T) {
	svc, server := newTestStripe(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"code":"balance_insufficient","message":"Insufficient funds"}}`))
	})
	defer server.Close()

	_, err := svc.CreateTransfer(context.Background(), 10, "acct_1", "key")
	assert.Error(t, err)

	gwErr, ok := err.(*GatewayError)
	assert.True(t, ok)
	assert.Equal(t, "balance_insufficient", gwErr.Code)
	assert.Equal(t, "Insufficient funds", gwErr.Message)
	assert.False(t, gwErr.Timeout)
	assert.False(t, IsGatewayTimeout(err))
}

func TestStripeErrorWithoutBody(t *testing.T) {
	svc, server := newTestStripe(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer server.Close()

	_, err := svc.GetAccount(context.Background(), "acct_1")
	gwErr, ok := err.(*GatewayError)
	assert.True(t, ok)
	assert.Equal(t, "http_500", gwErr.Code)
}

func TestStripeTimeout(t *testing.T) {
	svc, server := newTestStripe(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"id":"tr_1"}`))
	})
	defer server.Close()

	svc.HTTPClient = &http.Client{Timeout: 20 * time.Millisecond}

	_, err := svc.CreateTransfer(context.Background(), 10, "acct_1", "key")
	assert.Error(t, err)
	assert.True(t, IsGatewayTimeout(err))
}

func TestStripePaymentIntentRoundTrip(t *testing.T) {
	svc, server := newTestStripe(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment_intents/pi_42", r.URL.Path)
		w.Write([]byte(`{"id":"pi_42","status":"succeeded","amount":10000,"currency":"usd"}`))
	})
	defer server.Close()

	pi, err := svc.GetPaymentIntent(context.Background(), "pi_42")
	assert.NoError(t, err)
	assert.Equal(t, "succeeded", pi.Status)
	assert.Equal(t, int64(10000), pi.Amount)
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(10000), toCents(100.00))
	assert.Equal(t, int64(9999), toCents(99.99))
	assert.Equal(t, int64(3750), toCents(37.50))
}
