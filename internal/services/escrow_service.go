package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"TrainPay/internal/models"
)

// PlatformFeeRate is the platform's cut, computed once at hold creation.
const PlatformFeeRate = 0.25

// ReleaseWindow is the confirmation window armed when a trainer marks a
// session complete. Policy constant, never recomputed per record.
const ReleaseWindow = 24 * time.Hour

func roundCents(x float64) float64 {
	return math.Round(x*100) / 100
}

type ReleaseResult struct {
	Status     string `json:"status"` // "released" or "pending_manual"
	TransferID string `json:"transfer_id,omitempty"`
}

type RefundResult struct {
	Status   string  `json:"status"`
	Amount   float64 `json:"amount"`
	RefundID string  `json:"refund_id,omitempty"`
}

// EscrowService owns the lifecycle of escrow records. It is a stateless
// service object constructed with its dependencies injected; there is no
// process-wide singleton.
type EscrowService struct {
	db       *gorm.DB
	gateway  PaymentGateway
	notifier *NotificationService
	now      func() time.Time

	// Compatibility shim for bookings that predate escrow. When enabled,
	// MarkSessionComplete on a booking without an escrow record completes
	// the booking directly with no hold window.
	allowLegacyDirectComplete bool

	locks sync.Map // per-escrow ID mutexes
}

func NewEscrowService(db *gorm.DB, gateway PaymentGateway, notifier *NotificationService) *EscrowService {
	return &EscrowService{
		db:       db,
		gateway:  gateway,
		notifier: notifier,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *EscrowService) WithClock(now func() time.Time) *EscrowService {
	s.now = now
	return s
}

// WithLegacyDirectComplete enables the missing-escrow compatibility shim.
func (s *EscrowService) WithLegacyDirectComplete(enabled bool) *EscrowService {
	s.allowLegacyDirectComplete = enabled
	return s
}

// escrowLock returns the mutex for the given escrow ID. Serializes
// concurrent transitions in-process (parent confirm racing the auto-release
// sweep); the row lock below covers multi-process deployments.
func (s *EscrowService) escrowLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// forUpdate applies a row-level lock where the dialect supports it.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func appendEvent(tx *gorm.DB, escrowID string, eventType models.EscrowEventType, message string, actor *uint) error {
	event := models.EscrowEvent{
		EscrowID:    escrowID,
		EventType:   eventType,
		Message:     message,
		ActorUserID: actor,
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to append escrow event: %w", err)
	}
	return nil
}

// CreateHold persists a holding record for a captured booking payment.
// The fee split is computed exactly once here.
func (s *EscrowService) CreateHold(bookingID uint, paymentIntentID string, amount float64) (*models.EscrowRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var booking models.Booking
	if err := s.db.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	platformFee := roundCents(amount * PlatformFeeRate)
	trainerAmount := roundCents(amount - platformFee)

	record := models.EscrowRecord{
		ID:                "esc_" + uuid.NewString(),
		BookingID:         booking.ID,
		TrainerID:         booking.TrainerID,
		ParentID:          booking.ParentID,
		TotalAmount:       amount,
		PlatformFeeAmount: platformFee,
		TrainerAmount:     trainerAmount,
		PaymentIntentID:   paymentIntentID,
		Status:            models.EscrowHolding,
		CreatedAt:         s.now(),
	}

	// Atomic insert: the record and its hold_created event land together
	// or not at all.
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		msg := fmt.Sprintf("Hold created for $%.2f (platform fee $%.2f, trainer $%.2f)",
			amount, platformFee, trainerAmount)
		return appendEvent(tx, record.ID, models.EventHoldCreated, msg, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create escrow hold: %w", err)
	}

	s.notifier.NotifyHoldCreated(&record)

	return &record, nil
}

// MarkSessionComplete transitions holding -> session_complete and arms the
// confirmation window. Rejected while the session is still in the future.
func (s *EscrowService) MarkSessionComplete(bookingID uint, actorID uint) (*time.Time, error) {
	var booking models.Booking
	if err := s.db.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	if booking.TrainerID != actorID {
		return nil, ErrNotAllowed
	}

	now := s.now()
	if now.Before(booking.SessionEndAt) {
		return nil, ErrTooEarly
	}

	var record models.EscrowRecord
	if err := s.db.Where("booking_id = ?", bookingID).First(&record).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load escrow record: %w", err)
		}
		if !s.allowLegacyDirectComplete {
			return nil, ErrNotFound
		}
		// Legacy booking with no hold: complete directly, no window.
		log.Printf("escrow: booking %d has no escrow record, legacy direct complete", bookingID)
		if err := s.db.Model(&booking).Update("status", models.BookingCompleted).Error; err != nil {
			return nil, fmt.Errorf("failed to complete legacy booking: %w", err)
		}
		return nil, nil
	}

	mu := s.escrowLock(record.ID)
	mu.Lock()
	defer mu.Unlock()

	var eligible time.Time
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&record, "id = ?", record.ID).Error; err != nil {
			return err
		}
		if record.IsTerminal() {
			return ErrAlreadyProcessed
		}
		if record.Status != models.EscrowHolding {
			return ErrInvalidTransition
		}

		eligible = now.Add(ReleaseWindow)
		record.Status = models.EscrowSessionComplete
		record.TrainerCompletedAt = &now
		record.ReleaseEligibleAt = &eligible
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		if err := tx.Model(&booking).Update("status", models.BookingCompleted).Error; err != nil {
			return err
		}
		msg := fmt.Sprintf("Trainer marked session complete, auto-release at %s", eligible.Format(time.RFC3339))
		return appendEvent(tx, record.ID, models.EventTrainerCompleted, msg, &actorID)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyConfirmationRequested(&record, eligible)

	return &eligible, nil
}

// Confirm records the parent's confirmation and immediately attempts the
// release. A release failure does not roll the confirmation back; the
// release stays retryable.
func (s *EscrowService) Confirm(bookingID uint, actorID uint, rating *int, feedback string) error {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return ErrInvalidRating
	}

	var record models.EscrowRecord
	if err := s.db.Where("booking_id = ?", bookingID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load escrow record: %w", err)
	}

	if record.ParentID != actorID {
		return ErrNotAllowed
	}

	mu := s.escrowLock(record.ID)
	mu.Lock()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&record, "id = ?", record.ID).Error; err != nil {
			return err
		}
		if record.IsTerminal() {
			return ErrAlreadyProcessed
		}
		if record.Status != models.EscrowHolding && record.Status != models.EscrowSessionComplete {
			return ErrInvalidTransition
		}

		now := s.now()
		record.Status = models.EscrowConfirmed
		record.ParentConfirmedAt = &now
		record.ParentRating = rating
		record.ParentFeedback = feedback
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		return appendEvent(tx, record.ID, models.EventParentConfirmed, "Parent confirmed session", &actorID)
	})
	mu.Unlock()
	if err != nil {
		return err
	}

	s.notifier.NotifyConfirmed(&record)

	if _, err := s.ReleaseFunds(record.ID); err != nil {
		// Availability over consistency: the confirmation stands, the
		// release is retried by the sweep or an operator.
		log.Printf("escrow: release after confirm failed for %s: %v", record.ID, err)
	}
	return nil
}

// Dispute freezes the escrow pending admin resolution. No money moves here.
func (s *EscrowService) Dispute(bookingID uint, actorID uint, reason string) error {
	if reason == "" {
		return ErrMissingReason
	}

	var record models.EscrowRecord
	if err := s.db.Where("booking_id = ?", bookingID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load escrow record: %w", err)
	}

	if record.ParentID != actorID {
		return ErrNotAllowed
	}

	mu := s.escrowLock(record.ID)
	mu.Lock()
	defer mu.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&record, "id = ?", record.ID).Error; err != nil {
			return err
		}
		if record.IsTerminal() {
			return ErrAlreadyProcessed
		}
		if !record.CanBeDisputed() {
			return ErrInvalidTransition
		}

		now := s.now()
		record.Status = models.EscrowDisputed
		record.DisputedAt = &now
		record.DisputeReason = reason
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		return appendEvent(tx, record.ID, models.EventDisputed, "Dispute opened: "+reason, &actorID)
	})
	if err != nil {
		return err
	}

	s.notifier.NotifyDisputed(&record)

	return nil
}

// ReleaseFunds transfers the trainer's share out of escrow. Idempotent: a
// terminal record returns ErrAlreadyProcessed with zero gateway calls.
func (s *EscrowService) ReleaseFunds(escrowID string) (*ReleaseResult, error) {
	mu := s.escrowLock(escrowID)
	mu.Lock()
	defer mu.Unlock()
	return s.releaseLocked(escrowID)
}

func (s *EscrowService) releaseLocked(escrowID string) (*ReleaseResult, error) {
	var record models.EscrowRecord
	if err := s.db.First(&record, "id = ?", escrowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load escrow record: %w", err)
	}

	if record.IsTerminal() {
		return nil, ErrAlreadyProcessed
	}
	if record.Status != models.EscrowConfirmed {
		return nil, ErrInvalidTransition
	}

	var trainer models.User
	if err := s.db.First(&trainer, record.TrainerID).Error; err != nil {
		return nil, fmt.Errorf("failed to load trainer: %w", err)
	}

	now := s.now()

	if trainer.PayoutAccountID == "" {
		// Escrow stops holding the money either way; the payout itself
		// goes to the operator queue.
		err := s.db.Transaction(func(tx *gorm.DB) error {
			record.Status = models.EscrowReleased
			record.ReleasedAt = &now
			record.ReleaseMethod = models.ReleaseMethodPendingManual
			record.NeedsManualReview = true
			record.ManualReviewReason = models.ReviewPendingManualPayout
			if err := tx.Save(&record).Error; err != nil {
				return err
			}
			msg := fmt.Sprintf("Released $%.2f, trainer has no payout account, queued for manual payout", record.TrainerAmount)
			return appendEvent(tx, record.ID, models.EventFundsReleased, msg, nil)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to mark release: %w", err)
		}
		s.notifier.NotifyReleased(&record, true)
		return &ReleaseResult{Status: "pending_manual"}, nil
	}

	// Persist the pending marker before touching the network so a crash
	// mid-call is recoverable from the event trail.
	idemKey := fmt.Sprintf("escrow_release_%s", record.ID)
	if err := appendEvent(s.db, record.ID, models.EventReleasePending,
		"Dispatching transfer with key "+idemKey, nil); err != nil {
		return nil, err
	}

	transfer, err := s.gateway.CreateTransfer(context.Background(), record.TrainerAmount, trainer.PayoutAccountID, idemKey)
	if err != nil {
		log.Printf("escrow: transfer failed for %s (amount $%.2f): %v", record.ID, record.TrainerAmount, err)
		_ = appendEvent(s.db, record.ID, models.EventReleaseFailed, "Transfer failed: "+err.Error(), nil)
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		record.Status = models.EscrowReleased
		record.ReleasedAt = &now
		record.ReleaseMethod = models.ReleaseMethodTransfer
		record.TransferID = transfer.ID
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		msg := fmt.Sprintf("Released $%.2f to trainer (transfer %s)", record.TrainerAmount, transfer.ID)
		return appendEvent(tx, record.ID, models.EventFundsReleased, msg, nil)
	})
	if err != nil {
		// Funds moved but the record is stale. The idempotency key makes a
		// retried release safe, so surface for retry rather than compensate.
		log.Printf("CRITICAL: escrow %s transfer %s succeeded but status update failed: %v", record.ID, transfer.ID, err)
		return nil, fmt.Errorf("failed to finalize release: %w", err)
	}

	s.notifier.NotifyReleased(&record, false)

	return &ReleaseResult{Status: "released", TransferID: transfer.ID}, nil
}

// Refund returns funds to the parent. Defaults to the full total when amount
// is nil. Guards against double-refund and refund-after-release.
func (s *EscrowService) Refund(escrowID string, amount *float64, actorID *uint) (*RefundResult, error) {
	mu := s.escrowLock(escrowID)
	mu.Lock()
	defer mu.Unlock()
	return s.refundLocked(escrowID, amount, actorID)
}

func (s *EscrowService) refundLocked(escrowID string, amount *float64, actorID *uint) (*RefundResult, error) {
	var record models.EscrowRecord
	if err := s.db.First(&record, "id = ?", escrowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load escrow record: %w", err)
	}

	if record.IsTerminal() {
		return nil, ErrAlreadyProcessed
	}

	amt := record.TotalAmount
	if amount != nil {
		amt = *amount
	}
	if amt <= 0 || amt > record.TotalAmount {
		return nil, ErrInvalidAmount
	}

	now := s.now()
	idemKey := fmt.Sprintf("escrow_refund_%s", record.ID)

	refund, gwErr := s.gateway.CreateRefund(context.Background(), record.PaymentIntentID, amt, idemKey)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		record.Status = models.EscrowRefunded
		record.RefundedAt = &now
		record.RefundAmount = amt
		if gwErr != nil {
			// The record still terminates so no further hold actions are
			// possible, but it is flagged out of the processed totals and
			// onto the operator queue.
			record.NeedsManualReview = true
			record.ManualReviewReason = models.ReviewRefundFailed
			if err := tx.Save(&record).Error; err != nil {
				return err
			}
			return appendEvent(tx, record.ID, models.EventRefundFailed, "Refund failed: "+gwErr.Error(), actorID)
		}
		record.RefundID = refund.ID
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		msg := fmt.Sprintf("Refunded $%.2f to parent (refund %s)", amt, refund.ID)
		return appendEvent(tx, record.ID, models.EventFundsRefunded, msg, actorID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark refund: %w", err)
	}

	if gwErr != nil {
		log.Printf("escrow: refund failed for %s, queued for manual review: %v", record.ID, gwErr)
	}

	s.notifier.NotifyRefunded(&record, amt)

	result := &RefundResult{Status: string(models.EscrowRefunded), Amount: amt}
	if refund != nil {
		result.RefundID = refund.ID
	}
	return result, nil
}

// ResolveDispute is the administrative override terminating a disputed
// escrow: full release, full refund, or a percentage split.
func (s *EscrowService) ResolveDispute(escrowID string, resolution models.DisputeResolution, notes string, refundPercent *float64, adminID uint) error {
	mu := s.escrowLock(escrowID)
	mu.Lock()
	defer mu.Unlock()

	var record models.EscrowRecord
	if err := s.db.First(&record, "id = ?", escrowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load escrow record: %w", err)
	}

	if record.IsTerminal() {
		return ErrAlreadyProcessed
	}
	if record.Status != models.EscrowDisputed {
		return ErrInvalidTransition
	}

	now := s.now()

	markResolved := func(tx *gorm.DB) error {
		record.DisputeResolution = resolution
		record.ResolutionNotes = notes
		record.ResolvedBy = &adminID
		record.DisputeResolvedAt = &now
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		msg := fmt.Sprintf("Dispute resolved by admin: %s", resolution)
		return appendEvent(tx, record.ID, models.EventDisputeResolved, msg, &adminID)
	}

	switch resolution {
	case models.ResolutionReleasedToTrainer:
		if err := s.resolveTransfer(&record, record.TrainerAmount, 0, now, adminID); err != nil {
			return err
		}
		return s.db.Transaction(markResolved)

	case models.ResolutionRefundedToParent:
		if err := s.db.Transaction(markResolved); err != nil {
			return err
		}
		if _, err := s.refundLocked(record.ID, nil, &adminID); err != nil {
			return err
		}
		s.notifier.NotifyDisputeResolved(&record)
		return nil

	case models.ResolutionPartialRefund:
		if refundPercent == nil || *refundPercent < 0 || *refundPercent > 100 {
			return ErrInvalidAmount
		}
		p := *refundPercent / 100
		refundAmt := roundCents(record.TotalAmount * p)
		trainerGets := roundCents(record.TrainerAmount * (1 - p))

		if refundAmt > 0 {
			idemKey := fmt.Sprintf("escrow_refund_%s", record.ID)
			refund, err := s.gateway.CreateRefund(context.Background(), record.PaymentIntentID, refundAmt, idemKey)
			if err != nil {
				log.Printf("escrow: partial refund failed for %s: %v", record.ID, err)
				record.NeedsManualReview = true
				record.ManualReviewReason = models.ReviewRefundFailed
				_ = appendEvent(s.db, record.ID, models.EventRefundFailed, "Partial refund failed: "+err.Error(), &adminID)
			} else {
				record.RefundID = refund.ID
				msg := fmt.Sprintf("Partial refund of $%.2f to parent (refund %s)", refundAmt, refund.ID)
				_ = appendEvent(s.db, record.ID, models.EventFundsRefunded, msg, &adminID)
			}
		}
		record.RefundAmount = refundAmt

		if err := s.resolveTransfer(&record, trainerGets, refundAmt, now, adminID); err != nil {
			return err
		}
		return s.db.Transaction(markResolved)
	}

	return fmt.Errorf("unknown dispute resolution: %s", resolution)
}

// resolveTransfer moves a dispute-resolution payout to the trainer and
// terminates the record as released. A partial is modeled as a release with
// the refund recorded on the side, keeping the terminal set to exactly
// released/refunded. Gateway failure here still terminates the record but
// flags it for the operator queue: dispute resolutions must make forward
// progress.
func (s *EscrowService) resolveTransfer(record *models.EscrowRecord, trainerGets, refundAmt float64, now time.Time, adminID uint) error {
	var trainer models.User
	if err := s.db.First(&trainer, record.TrainerID).Error; err != nil {
		return fmt.Errorf("failed to load trainer: %w", err)
	}

	record.Status = models.EscrowReleased
	record.ReleasedAt = &now

	if trainerGets <= 0 {
		record.ReleaseMethod = models.ReleaseMethodTransfer
	} else if trainer.PayoutAccountID == "" {
		record.ReleaseMethod = models.ReleaseMethodPendingManual
		record.NeedsManualReview = true
		record.ManualReviewReason = models.ReviewPendingManualPayout
	} else {
		idemKey := fmt.Sprintf("escrow_release_%s", record.ID)
		transfer, err := s.gateway.CreateTransfer(context.Background(), trainerGets, trainer.PayoutAccountID, idemKey)
		if err != nil {
			log.Printf("escrow: resolution transfer failed for %s: %v", record.ID, err)
			record.NeedsManualReview = true
			record.ManualReviewReason = models.ReviewReleaseFailed
			_ = appendEvent(s.db, record.ID, models.EventReleaseFailed, "Resolution transfer failed: "+err.Error(), &adminID)
		} else {
			record.TransferID = transfer.ID
			record.ReleaseMethod = models.ReleaseMethodTransfer
			msg := fmt.Sprintf("Released $%.2f to trainer (transfer %s)", trainerGets, transfer.ID)
			_ = appendEvent(s.db, record.ID, models.EventFundsReleased, msg, &adminID)
		}
	}

	if err := s.db.Save(record).Error; err != nil {
		return fmt.Errorf("failed to finalize resolution: %w", err)
	}

	s.notifier.NotifyDisputeResolved(record)

	return nil
}

// ProcessAutoReleases is the hourly sweep: auto-confirms every record whose
// confirmation window elapsed without a dispute, then releases it. Each
// record is handled independently; one failure never aborts the batch.
// Returns the number of records auto-confirmed.
func (s *EscrowService) ProcessAutoReleases() (int, error) {
	now := s.now()

	var due []models.EscrowRecord
	if err := s.db.
		Where("status = ? AND release_eligible_at <= ?", models.EscrowSessionComplete, now).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("failed to query due escrows: %w", err)
	}

	processed := 0
	for i := range due {
		if err := s.autoConfirm(due[i].ID); err != nil {
			if errors.Is(err, ErrAlreadyProcessed) || errors.Is(err, ErrInvalidTransition) {
				// A parent action won the race; nothing to do.
				continue
			}
			log.Printf("escrow: auto-confirm failed for %s: %v", due[i].ID, err)
			continue
		}
		processed++

		if _, err := s.ReleaseFunds(due[i].ID); err != nil {
			log.Printf("escrow: auto-release failed for %s: %v", due[i].ID, err)
		}
	}

	// Second pass: re-attempt releases that failed previously. A record
	// still in confirmed has no transfer behind it.
	var stuck []models.EscrowRecord
	if err := s.db.Where("status = ?", models.EscrowConfirmed).Find(&stuck).Error; err != nil {
		return processed, fmt.Errorf("failed to query stuck releases: %w", err)
	}
	for i := range stuck {
		if _, err := s.ReleaseFunds(stuck[i].ID); err != nil {
			if errors.Is(err, ErrAlreadyProcessed) || errors.Is(err, ErrInvalidTransition) {
				continue
			}
			log.Printf("escrow: release retry failed for %s: %v", stuck[i].ID, err)
		}
	}

	return processed, nil
}

func (s *EscrowService) autoConfirm(escrowID string) error {
	mu := s.escrowLock(escrowID)
	mu.Lock()
	defer mu.Unlock()

	var record models.EscrowRecord
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&record, "id = ?", escrowID).Error; err != nil {
			return err
		}
		if record.IsTerminal() {
			return ErrAlreadyProcessed
		}
		if record.Status != models.EscrowSessionComplete {
			return ErrInvalidTransition
		}
		now := s.now()
		if record.ReleaseEligibleAt == nil || record.ReleaseEligibleAt.After(now) {
			return ErrInvalidTransition
		}

		record.Status = models.EscrowConfirmed
		record.AutoConfirmed = true
		record.ParentConfirmedAt = &now
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		return appendEvent(tx, record.ID, models.EventAutoConfirmed,
			"Confirmation window elapsed, auto-confirmed", nil)
	})
}

// GetByBookingID returns the escrow record for a booking with its audit
// trail, or ErrNotFound.
func (s *EscrowService) GetByBookingID(bookingID uint) (*models.EscrowRecord, error) {
	var record models.EscrowRecord
	if err := s.db.Preload("Events").Where("booking_id = ?", bookingID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load escrow record: %w", err)
	}
	return &record, nil
}

// AttachEvidence records an uploaded dispute-evidence file on the audit
// trail.
func (s *EscrowService) AttachEvidence(escrowID string, actorID uint, fileURL string) error {
	var record models.EscrowRecord
	if err := s.db.First(&record, "id = ?", escrowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load escrow record: %w", err)
	}
	if record.ParentID != actorID && record.TrainerID != actorID {
		return ErrNotAllowed
	}
	if record.Status != models.EscrowDisputed {
		return ErrInvalidTransition
	}
	return appendEvent(s.db, record.ID, models.EventEvidenceAttached, "Evidence uploaded: "+fileURL, &actorID)
}
