package handlers

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"TrainPay/internal/models"
	"TrainPay/internal/services"
)

func setupAdminTest(t *testing.T) (*escrowTestEnv, models.User) {
	env := setupEscrowTest(t)

	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	admin := models.User{FullName: "Ada Admin", Email: "ada@test.com", Password: string(hash), Role: "admin"}
	env.db.Create(&admin)

	svc := services.NewEscrowService(env.db, env.gw, services.NewNotificationService(env.db)).
		WithClock(func() time.Time { return handlerTestTime })
	h := NewAdminHandler(env.db, svc, env.gw)

	env.app.Post("/api/admin/login", h.AdminLogin)
	env.app.Get("/api/admin/escrows", h.GetAllEscrows)
	env.app.Get("/api/admin/escrows/review-queue", h.GetReviewQueue)
	env.app.Post("/api/admin/escrow/:escrowId/resolve", h.ResolveEscrowDispute)
	env.app.Post("/api/admin/escrow/:escrowId/clear-review", h.ClearManualReview)
	env.app.Post("/api/admin/escrow/process-auto-releases", h.ProcessAutoReleases)

	return env, admin
}

func disputedRecord(t *testing.T, env *escrowTestEnv) models.EscrowRecord {
	env.request(t, "POST", "/api/escrow/hold", fiber.Map{
		"booking_id":        env.booking.ID,
		"payment_intent_id": "pi_booking",
		"amount":            100.00,
	}, env.parent)
	code, _ := env.request(t, "POST", env.bookingPath("/dispute"), fiber.Map{"reason": "no show"}, env.parent)
	assert.Equal(t, fiber.StatusOK, code)

	var record models.EscrowRecord
	env.db.Where("booking_id = ?", env.booking.ID).First(&record)
	return record
}

func TestAdminLogin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	env, admin := setupAdminTest(t)

	t.Run("Valid Credentials", func(t *testing.T) {
		code, body := env.request(t, "POST", "/api/admin/login", fiber.Map{
			"email":    admin.Email,
			"password": "hunter2",
		}, admin)
		assert.Equal(t, fiber.StatusOK, code)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("Wrong Password", func(t *testing.T) {
		code, _ := env.request(t, "POST", "/api/admin/login", fiber.Map{
			"email":    admin.Email,
			"password": "wrong",
		}, admin)
		assert.Equal(t, fiber.StatusUnauthorized, code)
	})

	t.Run("Non Admin Rejected", func(t *testing.T) {
		hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.DefaultCost)
		env.db.Model(&models.User{}).Where("id = ?", env.parent.ID).Update("password", string(hash))

		code, _ := env.request(t, "POST", "/api/admin/login", fiber.Map{
			"email":    env.parent.Email,
			"password": "pw",
		}, env.parent)
		assert.Equal(t, fiber.StatusForbidden, code)
	})
}

func TestResolveEscrowDisputeEndpoint(t *testing.T) {
	t.Run("Release Resolution", func(t *testing.T) {
		env, admin := setupAdminTest(t)
		record := disputedRecord(t, env)

		code, body := env.request(t, "POST", "/api/admin/escrow/"+record.ID+"/resolve", fiber.Map{
			"resolution": "release",
			"notes":      "evidence favors trainer",
		}, admin)
		assert.Equal(t, fiber.StatusOK, code)

		escrow := body["escrow"].(map[string]interface{})
		assert.Equal(t, "released", escrow["status"])
		assert.Equal(t, 1, env.gw.transferCalls)
	})

	t.Run("Partial Requires Percent", func(t *testing.T) {
		env, admin := setupAdminTest(t)
		record := disputedRecord(t, env)

		code, _ := env.request(t, "POST", "/api/admin/escrow/"+record.ID+"/resolve", fiber.Map{
			"resolution": "partial",
		}, admin)
		assert.Equal(t, fiber.StatusBadRequest, code)
	})

	t.Run("Invalid Resolution", func(t *testing.T) {
		env, admin := setupAdminTest(t)
		record := disputedRecord(t, env)

		code, _ := env.request(t, "POST", "/api/admin/escrow/"+record.ID+"/resolve", fiber.Map{
			"resolution": "split-the-baby",
		}, admin)
		assert.Equal(t, fiber.StatusBadRequest, code)
	})
}

func TestReviewQueueEndpoints(t *testing.T) {
	env, admin := setupAdminTest(t)

	// Force a record onto the review queue: trainer with no payout account
	env.db.Model(&models.User{}).Where("id = ?", env.trainer.ID).Update("payout_account_id", "")
	env.request(t, "POST", "/api/escrow/hold", fiber.Map{
		"booking_id":        env.booking.ID,
		"payment_intent_id": "pi_booking",
		"amount":            100.00,
	}, env.parent)
	env.request(t, "POST", env.bookingPath("/confirm"), nil, env.parent)

	var record models.EscrowRecord
	env.db.Where("booking_id = ?", env.booking.ID).First(&record)
	assert.True(t, record.NeedsManualReview)

	t.Run("Queue Lists Flagged Records", func(t *testing.T) {
		code, body := env.request(t, "GET", "/api/admin/escrows/review-queue", nil, admin)
		assert.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("Clear Review", func(t *testing.T) {
		code, _ := env.request(t, "POST", "/api/admin/escrow/"+record.ID+"/clear-review", fiber.Map{
			"notes": "paid out via bank transfer",
		}, admin)
		assert.Equal(t, fiber.StatusOK, code)

		code, body := env.request(t, "GET", "/api/admin/escrows/review-queue", nil, admin)
		assert.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, float64(0), body["count"])
	})

	t.Run("Clear Review Twice Rejected", func(t *testing.T) {
		code, _ := env.request(t, "POST", "/api/admin/escrow/"+record.ID+"/clear-review", nil, admin)
		assert.Equal(t, fiber.StatusBadRequest, code)
	})
}

func TestProcessAutoReleasesEndpoint(t *testing.T) {
	env, admin := setupAdminTest(t)

	code, body := env.request(t, "POST", "/api/admin/escrow/process-auto-releases", nil, admin)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, float64(0), body["processed"])
}
