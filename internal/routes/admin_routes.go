package routes

import (
	"github.com/gofiber/fiber/v2"

	"TrainPay/internal/handlers"
	"TrainPay/internal/middleware"
)

func SetupAdminRoutes(app *fiber.App, h *handlers.AdminHandler) {
	app.Post("/api/admin/login", h.AdminLogin)

	admin := app.Group("/api/admin", middleware.Protected(), middleware.AdminOnly())

	// Escrow oversight
	admin.Get("/escrows", h.GetAllEscrows)
	admin.Get("/escrows/review-queue", h.GetReviewQueue)
	admin.Post("/escrow/:escrowId/resolve", h.ResolveEscrowDispute)
	admin.Post("/escrow/:escrowId/clear-review", h.ClearManualReview)

	// Manual trigger for the auto-release sweep
	admin.Post("/escrow/process-auto-releases", h.ProcessAutoReleases)

	// Trainer payout onboarding
	admin.Post("/trainers/:id/connect-account", h.CreateTrainerConnectAccount)
	admin.Post("/trainers/:id/account-link", h.CreateTrainerAccountLink)
}
