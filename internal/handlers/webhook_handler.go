package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"TrainPay/internal/models"
	"TrainPay/internal/services"
)

// DefaultWebhookTolerance bounds how stale a signed timestamp may be before
// the event is rejected as a possible replay.
const DefaultWebhookTolerance = 5 * time.Minute

type WebhookHandler struct {
	db        *gorm.DB
	secret    string
	gateway   services.PaymentGateway // nil disables readback verification
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookHandler(db *gorm.DB, secret string, gateway services.PaymentGateway) *WebhookHandler {
	return &WebhookHandler{
		db:        db,
		secret:    secret,
		gateway:   gateway,
		tolerance: DefaultWebhookTolerance,
		now:       time.Now,
	}
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// HandleWebhook verifies the processor's signature before touching anything,
// then folds the event into our own records. Escrow status is never driven
// from here: webhooks update payment and payout bookkeeping only.
func (h *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	body := c.Body()

	if err := h.verifySignature(c.Get("Stripe-Signature"), body); err != nil {
		log.Printf("⚠️ Webhook rejected: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}

	// Intent readbacks are cached for the life of this request only
	piCache := map[string]*services.PaymentIntent{}

	switch event.Type {
	case "payment_intent.succeeded":
		if err := h.updatePaymentStatus(event.Data.Object, models.PaymentSucceeded, piCache); err != nil {
			log.Printf("⚠️ Webhook %s: %v", event.ID, err)
		}
	case "payment_intent.payment_failed":
		if err := h.updatePaymentStatus(event.Data.Object, models.PaymentFailed, piCache); err != nil {
			log.Printf("⚠️ Webhook %s: %v", event.ID, err)
		}
	case "account.updated":
		if err := h.updatePayoutAccount(event.Data.Object); err != nil {
			log.Printf("⚠️ Webhook %s: %v", event.ID, err)
		}
	default:
		// Unknown event types are acknowledged so the processor stops retrying
	}

	return c.JSON(fiber.Map{"received": true})
}

// verifySignature checks the "t={ts},v1={hex}" header: HMAC-SHA256 over
// "{timestamp}.{raw body}" with the endpoint secret, compared in constant
// time, and the timestamp must be within the replay tolerance.
func (h *WebhookHandler) verifySignature(header string, body []byte) error {
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("malformed signature header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp")
	}
	age := h.now().Sub(time.Unix(ts, 0))
	if age > h.tolerance || age < -h.tolerance {
		return fmt.Errorf("timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch")
}

// readIntent fetches the intent from the processor, memoizing per request so
// several events for the same intent cost one call.
func (h *WebhookHandler) readIntent(id string, cache map[string]*services.PaymentIntent) (*services.PaymentIntent, error) {
	if cached, ok := cache[id]; ok {
		return cached, nil
	}
	intent, err := h.gateway.GetPaymentIntent(context.Background(), id)
	if err != nil {
		return nil, err
	}
	cache[id] = intent
	return intent, nil
}

func (h *WebhookHandler) updatePaymentStatus(object json.RawMessage, status models.PaymentStatus, cache map[string]*services.PaymentIntent) error {
	var pi struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(object, &pi); err != nil || pi.ID == "" {
		return fmt.Errorf("payment intent payload missing id")
	}

	// Cross-check the event against the processor's current view. A stale or
	// out-of-order succeeded event must not overwrite reality.
	if h.gateway != nil && status == models.PaymentSucceeded {
		intent, err := h.readIntent(pi.ID, cache)
		if err != nil {
			log.Printf("⚠️ Webhook: intent readback failed for %s, trusting signed event: %v", pi.ID, err)
		} else if intent.Status != "succeeded" {
			return fmt.Errorf("intent %s reads back as %s, skipping succeeded event", pi.ID, intent.Status)
		}
	}

	result := h.db.Model(&models.Booking{}).
		Where("payment_intent_id = ?", pi.ID).
		Update("payment_status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Payments for bookings we have not recorded yet; retried later
		return fmt.Errorf("no booking for payment intent %s", pi.ID)
	}
	return nil
}

func (h *WebhookHandler) updatePayoutAccount(object json.RawMessage) error {
	var acct struct {
		ID             string `json:"id"`
		PayoutsEnabled bool   `json:"payouts_enabled"`
	}
	if err := json.Unmarshal(object, &acct); err != nil || acct.ID == "" {
		return fmt.Errorf("account payload missing id")
	}

	result := h.db.Model(&models.User{}).
		Where("payout_account_id = ?", acct.ID).
		Update("payout_capable", acct.PayoutsEnabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no user for payout account %s", acct.ID)
	}
	return nil
}
