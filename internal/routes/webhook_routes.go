package routes

import (
	"github.com/gofiber/fiber/v2"

	"TrainPay/internal/handlers"
)

// Webhook endpoints are authenticated by signature, not by JWT.
func SetupWebhookRoutes(app *fiber.App, h *handlers.WebhookHandler) {
	app.Post("/api/webhooks/stripe", h.HandleWebhook)
}
