package routes

import (
	"github.com/gofiber/fiber/v2"

	"TrainPay/internal/handlers"
	"TrainPay/internal/middleware"
)

func SetupEscrowRoutes(app *fiber.App, h *handlers.EscrowHandler) {
	escrow := app.Group("/api/escrow", middleware.Protected())

	// Create a hold for a paid booking
	escrow.Post("/hold", h.CreateHold)

	// Trainer marks the session as delivered
	escrow.Post("/booking/:bookingId/complete", h.CompleteSession)

	// Parent confirms and releases payment
	escrow.Post("/booking/:bookingId/confirm", h.ConfirmSession)

	// Parent disputes the session
	escrow.Post("/booking/:bookingId/dispute", h.DisputeSession)

	// Escrow status for a booking
	escrow.Get("/booking/:bookingId", h.GetEscrowStatus)

	// Full audit trail
	escrow.Get("/booking/:bookingId/events", h.GetEscrowEvents)

	// Attach dispute evidence
	escrow.Post("/:escrowId/evidence", h.UploadEvidence)
}
