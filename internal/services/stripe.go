package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"time"
)

// GatewayError is the normalized shape of every non-2xx or transport failure
// from the payment processor. Timeout distinguishes network failures from
// application-level declines.
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
	Timeout bool   `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("gateway timeout: %s", e.Message)
	}
	return fmt.Sprintf("gateway error [%s]: %s", e.Code, e.Message)
}

// IsGatewayTimeout reports whether err is a gateway transport timeout rather
// than an explicit decline.
func IsGatewayTimeout(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Timeout
}

type PaymentIntent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"` // smallest currency unit (cents)
	Currency string `json:"currency"`
}

type Transfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Destination string `json:"destination"`
}

type Refund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type Account struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

type AccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

// PaymentGateway is the processor surface the escrow engine depends on.
// Every mutating call takes a caller-supplied idempotency key; the client
// passes it through unmodified so repeated calls for the same logical
// operation are safe even across process restarts.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount float64, currency, idempotencyKey string) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CreateTransfer(ctx context.Context, amount float64, destination, idempotencyKey string) (*Transfer, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amount float64, idempotencyKey string) (*Refund, error)
	CreateConnectAccount(ctx context.Context, email, idempotencyKey string) (*Account, error)
	GetAccount(ctx context.Context, id string) (*Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL, idempotencyKey string) (*AccountLink, error)
}

// StripeService is a stateless wrapper around the processor's REST API.
// Retries are the caller's decision; the client never retries on its own.
type StripeService struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
}

// NewStripeService creates a new payment gateway client
func NewStripeService() *StripeService {
	return &StripeService{
		SecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		BaseURL:   "https://api.stripe.com/v1",
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// makeRequest makes an HTTP request to the processor API. The idempotency
// key, when present, goes out unmodified in the Idempotency-Key header.
func (s *StripeService) makeRequest(ctx context.Context, method, endpoint, idempotencyKey string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, normalizeTransportError(err)
	}
	return resp, nil
}

func normalizeTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &GatewayError{Code: "timeout", Message: "request to payment processor timed out", Timeout: true}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{Code: "timeout", Message: "request to payment processor timed out", Timeout: true}
	}
	return &GatewayError{Code: "unavailable", Message: "payment processor unreachable", Raw: err.Error()}
}

// decode reads the response into out, normalizing error-shaped bodies into a
// *GatewayError.
func (s *StripeService) decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &errBody)
		code := errBody.Error.Code
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		msg := errBody.Error.Message
		if msg == "" {
			msg = "payment processor request failed"
		}
		return &GatewayError{Code: code, Message: msg, Raw: string(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CreatePaymentIntent captures funds for a booking payment
func (s *StripeService) CreatePaymentIntent(ctx context.Context, amount float64, currency, idempotencyKey string) (*PaymentIntent, error) {
	payload := map[string]interface{}{
		"amount":   toCents(amount),
		"currency": currency,
	}

	resp, err := s.makeRequest(ctx, "POST", "/payment_intents", idempotencyKey, payload)
	if err != nil {
		return nil, err
	}

	var result PaymentIntent
	if err := s.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPaymentIntent retrieves a payment intent by id
func (s *StripeService) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	resp, err := s.makeRequest(ctx, "GET", "/payment_intents/"+id, "", nil)
	if err != nil {
		return nil, err
	}

	var result PaymentIntent
	if err := s.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTransfer moves a trainer's share to their connected payout account
func (s *StripeService) CreateTransfer(ctx context.Context, amount float64, destination, idempotencyKey string) (*Transfer, error) {
	payload := map[string]interface{}{
		"amount":      toCents(amount),
		"currency":    "usd",
		"destination": destination,
	}

	resp, err := s.makeRequest(ctx, "POST", "/transfers", idempotencyKey, payload)
	if err != nil {
		return nil, err
	}

	var result Transfer
	if err := s.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRefund refunds part or all of a captured payment
func (s *StripeService) CreateRefund(ctx context.Context, paymentIntentID string, amount float64, idempotencyKey string) (*Refund, error) {
	payload := map[string]interface{}{
		"payment_intent": paymentIntentID,
		"amount":         toCents(amount),
	}

	resp, err := s.makeRequest(ctx, "POST", "/refunds", idempotencyKey, payload)
	if err != nil {
		return nil, err
	}

	var result Refund
	if err := s.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateConnectAccount creates a connected payout account for a trainer
func (s *StripeService) CreateConnectAccount(ctx context.Context, email, idempotencyKey string) (*Account, error) {
	payload := map[string]interface{}{
		"type":  "express",
		"email": email,
	}

	resp, err := s.makeRequest(ctx, "POST", "/accounts", idempotencyKey, payload)
	if err != nil {
		return nil, err
	}

	var result Account
	if err := s.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAccount retrieves a connected account
func (s *StripeService) GetAccount(ctx context.Context, id string) (*Account, error) {
	resp, err := s.makeRequest(ctx, "GET", "/accounts/"+id, "", nil)
	if err != nil {
		return nil, err
	}

	var result Account
	if err := s.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateAccountLink creates an onboarding link for a connected account
func (s *StripeService) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL, idempotencyKey string) (*AccountLink, error) {
	payload := map[string]interface{}{
		"account":     accountID,
		"refresh_url": refreshURL,
		"return_url":  returnURL,
		"type":        "account_onboarding",
	}

	resp, err := s.makeRequest(ctx, "POST", "/account_links", idempotencyKey, payload)
	if err != nil {
		return nil, err
	}

	var result AccountLink
	if err := s.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
