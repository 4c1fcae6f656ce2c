package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"TrainPay/internal/models"
	"TrainPay/internal/services"
)

type AdminHandler struct {
	db      *gorm.DB
	svc     *services.EscrowService
	gateway services.PaymentGateway
}

func NewAdminHandler(db *gorm.DB, svc *services.EscrowService, gateway services.PaymentGateway) *AdminHandler {
	return &AdminHandler{db: db, svc: svc, gateway: gateway}
}

// AdminLogin
func (h *AdminHandler) AdminLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Find user by email
	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	// Check if user is admin
	if !user.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Admin access required",
		})
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	// Generate JWT token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    user.Role,
		"exp":     time.Now().Add(time.Hour * 24 * 7).Unix(), // 7 days for admin
	})

	tokenString, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Admin login successful",
		"token":   tokenString,
		"user": fiber.Map{
			"id":        user.ID,
			"full_name": user.FullName,
			"email":     user.Email,
			"role":      user.Role,
		},
	})
}

type ResolveEscrowRequest struct {
	Resolution    string   `json:"resolution" validate:"required,oneof=release refund partial"`
	Notes         string   `json:"notes"`
	RefundPercent *float64 `json:"refund_percent" validate:"omitempty,gte=0,lte=100"`
}

// ResolveEscrowDispute applies an administrative resolution to a disputed
// escrow: full release, full refund, or a percentage split.
func (h *AdminHandler) ResolveEscrowDispute(c *fiber.Ctx) error {
	escrowID := c.Params("escrowId")
	adminID := c.Locals("user_id").(uint)

	req := new(ResolveEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "resolution must be one of release, refund, partial",
		})
	}

	var resolution models.DisputeResolution
	switch req.Resolution {
	case "release":
		resolution = models.ResolutionReleasedToTrainer
	case "refund":
		resolution = models.ResolutionRefundedToParent
	case "partial":
		if req.RefundPercent == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "refund_percent is required for a partial resolution",
			})
		}
		resolution = models.ResolutionPartialRefund
	}

	if err := h.svc.ResolveDispute(escrowID, resolution, req.Notes, req.RefundPercent, adminID); err != nil {
		// Admins get the raw gateway message for operational debugging
		var gwErr *services.GatewayError
		if errors.As(err, &gwErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "Payment processor error",
				"gateway": gwErr,
			})
		}
		return serviceError(c, err)
	}

	var record models.EscrowRecord
	h.db.First(&record, "id = ?", escrowID)

	return c.JSON(fiber.Map{
		"message": "Dispute resolved",
		"escrow": fiber.Map{
			"escrow_id":           record.ID,
			"status":              record.Status,
			"dispute_resolution":  record.DisputeResolution,
			"refund_amount":       record.RefundAmount,
			"transfer_id":         record.TransferID,
			"refund_id":           record.RefundID,
			"needs_manual_review": record.NeedsManualReview,
		},
	})
}

// GetAllEscrows lists escrow records, optionally filtered by status
func (h *AdminHandler) GetAllEscrows(c *fiber.Ctx) error {
	status := c.Query("status")

	query := h.db.Preload("Booking").Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var records []models.EscrowRecord
	if err := query.Find(&records).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve escrow records",
		})
	}

	return c.JSON(fiber.Map{
		"escrows": records,
		"count":   len(records),
	})
}

// GetReviewQueue lists records waiting on an operator: manual payouts and
// failed gateway calls.
func (h *AdminHandler) GetReviewQueue(c *fiber.Ctx) error {
	var records []models.EscrowRecord
	if err := h.db.
		Where("needs_manual_review = ?", true).
		Order("updated_at ASC").
		Find(&records).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve review queue",
		})
	}

	return c.JSON(fiber.Map{
		"queue": records,
		"count": len(records),
	})
}

// ClearManualReview marks an operator-queue item as handled (e.g. a manual
// payout was completed outside the system)
func (h *AdminHandler) ClearManualReview(c *fiber.Ctx) error {
	escrowID := c.Params("escrowId")
	adminID := c.Locals("user_id").(uint)

	var req struct {
		Notes string `json:"notes"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	var record models.EscrowRecord
	if err := h.db.First(&record, "id = ?", escrowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Escrow record not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if !record.NeedsManualReview {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Record is not in the review queue"})
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&record).Updates(map[string]interface{}{
			"needs_manual_review":  false,
			"manual_review_reason": "",
		}).Error; err != nil {
			return err
		}
		event := models.EscrowEvent{
			EscrowID:    record.ID,
			EventType:   models.EventReviewCleared,
			Message:     "Operator cleared manual review: " + req.Notes,
			ActorUserID: &adminID,
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update record"})
	}

	return c.JSON(fiber.Map{
		"message": "Review cleared",
	})
}

// ProcessAutoReleases runs the auto-release sweep on demand
func (h *AdminHandler) ProcessAutoReleases(c *fiber.Ctx) error {
	processed, err := h.svc.ProcessAutoReleases()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":     fmt.Sprintf("Sweep failed: %v", err),
			"processed": processed,
		})
	}

	return c.JSON(fiber.Map{
		"message":   "Auto-release sweep completed",
		"processed": processed,
	})
}

// CreateTrainerConnectAccount creates a connected payout account for a
// trainer with the payment processor
func (h *AdminHandler) CreateTrainerConnectAccount(c *fiber.Ctx) error {
	trainerID := c.Params("id")

	var trainer models.User
	if err := h.db.Where("id = ? AND role = ?", trainerID, "trainer").First(&trainer).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Trainer not found"})
	}
	if trainer.PayoutAccountID != "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Trainer already has a payout account"})
	}

	idemKey := fmt.Sprintf("connect_account_%d", trainer.ID)
	account, err := h.gateway.CreateConnectAccount(context.Background(), trainer.Email, idemKey)
	if err != nil {
		var gwErr *services.GatewayError
		if errors.As(err, &gwErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "Payment processor error",
				"gateway": gwErr,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create account"})
	}

	if err := h.db.Model(&trainer).Updates(map[string]interface{}{
		"payout_account_id": account.ID,
		"payout_capable":    account.PayoutsEnabled,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save payout account"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payout account created",
		"account": account,
	})
}

// CreateTrainerAccountLink generates an onboarding link for a trainer's
// connected account
func (h *AdminHandler) CreateTrainerAccountLink(c *fiber.Ctx) error {
	trainerID := c.Params("id")

	var req struct {
		RefreshURL string `json:"refresh_url" validate:"required,url"`
		ReturnURL  string `json:"return_url" validate:"required,url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "refresh_url and return_url are required"})
	}

	var trainer models.User
	if err := h.db.Where("id = ? AND role = ?", trainerID, "trainer").First(&trainer).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Trainer not found"})
	}
	if trainer.PayoutAccountID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Trainer has no payout account yet"})
	}

	idemKey := fmt.Sprintf("account_link_%d_%d", trainer.ID, time.Now().Unix())
	link, err := h.gateway.CreateAccountLink(context.Background(), trainer.PayoutAccountID, req.RefreshURL, req.ReturnURL, idemKey)
	if err != nil {
		var gwErr *services.GatewayError
		if errors.As(err, &gwErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "Payment processor error",
				"gateway": gwErr,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create account link"})
	}

	return c.JSON(fiber.Map{
		"url":        link.URL,
		"expires_at": link.ExpiresAt,
	})
}
