package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"TrainPay/internal/services"
)

var validate = validator.New()

type EscrowHandler struct {
	svc     *services.EscrowService
	uploads *services.CloudinaryService // nil when evidence storage is not configured
}

func NewEscrowHandler(svc *services.EscrowService, uploads *services.CloudinaryService) *EscrowHandler {
	return &EscrowHandler{svc: svc, uploads: uploads}
}

type CreateHoldRequest struct {
	BookingID       uint    `json:"booking_id" validate:"required"`
	PaymentIntentID string  `json:"payment_intent_id" validate:"required"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
}

type ConfirmRequest struct {
	Rating   *int   `json:"rating" validate:"omitempty,min=1,max=5"`
	Feedback string `json:"feedback"`
}

type DisputeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// serviceError maps domain errors to HTTP responses with short
// human-readable messages; gateway internals never leak to parents or
// trainers.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrBookingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Escrow record not found"})
	case errors.Is(err, services.ErrAlreadyProcessed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session already processed"})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "This action is not available in the session's current state"})
	case errors.Is(err, services.ErrTooEarly):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "The session has not ended yet"})
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrMissingReason),
		errors.Is(err, services.ErrInvalidRating):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotAllowed):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You don't have access to this booking"})
	}

	var gwErr *services.GatewayError
	if errors.As(err, &gwErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment processor error, please try again later"})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong"})
}

func bookingIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("bookingId"), 10, 32)
	return uint(id), err
}

// CreateHold places a captured booking payment in escrow
func (h *EscrowHandler) CreateHold(c *fiber.Ctx) error {
	req := new(CreateHoldRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "booking_id, payment_intent_id and a positive amount are required",
		})
	}

	record, err := h.svc.CreateHold(req.BookingID, req.PaymentIntentID, req.Amount)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payment is held in escrow until the session is confirmed",
		"escrow": fiber.Map{
			"escrow_id":           record.ID,
			"booking_id":          record.BookingID,
			"total_amount":        record.TotalAmount,
			"platform_fee_amount": record.PlatformFeeAmount,
			"trainer_amount":      record.TrainerAmount,
			"status":              record.Status,
		},
	})
}

// CompleteSession - trainer marks the session as delivered, arming the
// confirmation window
func (h *EscrowHandler) CompleteSession(c *fiber.Ctx) error {
	bookingID, err := bookingIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}
	userID := c.Locals("user_id").(uint)

	releaseEligibleAt, err := h.svc.MarkSessionComplete(bookingID, userID)
	if err != nil {
		return serviceError(c, err)
	}

	if releaseEligibleAt == nil {
		// Legacy booking with no escrow hold
		return c.JSON(fiber.Map{
			"message": "Session marked complete",
		})
	}

	return c.JSON(fiber.Map{
		"message":             "Session marked complete. The parent has 24 hours to confirm before funds release automatically.",
		"release_eligible_at": releaseEligibleAt,
	})
}

// ConfirmSession - parent confirms the session, releasing funds
func (h *EscrowHandler) ConfirmSession(c *fiber.Ctx) error {
	bookingID, err := bookingIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}
	userID := c.Locals("user_id").(uint)

	req := new(ConfirmRequest)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Rating must be between 1 and 5"})
	}

	if err := h.svc.Confirm(bookingID, userID, req.Rating, req.Feedback); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Session confirmed. Thank you!",
	})
}

// DisputeSession - parent raises a dispute, freezing the funds
func (h *EscrowHandler) DisputeSession(c *fiber.Ctx) error {
	bookingID, err := bookingIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}
	userID := c.Locals("user_id").(uint)

	req := new(DisputeRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "A dispute reason is required"})
	}

	if err := h.svc.Dispute(bookingID, userID, req.Reason); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Dispute raised. Payment stays on hold until our team resolves it.",
	})
}

// GetEscrowStatus returns the escrow record for a booking
func (h *EscrowHandler) GetEscrowStatus(c *fiber.Ctx) error {
	bookingID, err := bookingIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}
	userID := c.Locals("user_id").(uint)
	role, _ := c.Locals("role").(string)

	record, err := h.svc.GetByBookingID(bookingID)
	if err != nil {
		return serviceError(c, err)
	}

	if role != "admin" && record.ParentID != userID && record.TrainerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have access to this booking",
		})
	}

	return c.JSON(fiber.Map{
		"escrow": record,
	})
}

// GetEscrowEvents returns the audit trail for a booking's escrow
func (h *EscrowHandler) GetEscrowEvents(c *fiber.Ctx) error {
	bookingID, err := bookingIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}
	userID := c.Locals("user_id").(uint)
	role, _ := c.Locals("role").(string)

	record, err := h.svc.GetByBookingID(bookingID)
	if err != nil {
		return serviceError(c, err)
	}
	if role != "admin" && record.ParentID != userID && record.TrainerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have access to this booking",
		})
	}

	return c.JSON(fiber.Map{
		"events": record.Events,
		"count":  len(record.Events),
	})
}

// UploadEvidence attaches a file to a disputed escrow's audit trail
func (h *EscrowHandler) UploadEvidence(c *fiber.Ctx) error {
	if h.uploads == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Evidence uploads are not available",
		})
	}

	escrowID := c.Params("escrowId")
	userID := c.Locals("user_id").(uint)

	file, err := c.FormFile("evidence")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file uploaded"})
	}
	if file.Size > 5*1024*1024 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File size exceeds 5MB limit"})
	}

	result, err := h.uploads.UploadEvidence(file, escrowID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store evidence"})
	}

	if err := h.svc.AttachEvidence(escrowID, userID, result.SecureURL); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":  "Evidence uploaded",
		"file_url": result.SecureURL,
	})
}
