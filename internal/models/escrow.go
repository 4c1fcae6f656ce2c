package models

import (
	"time"
)

type EscrowStatus string

const (
	EscrowHolding         EscrowStatus = "holding"
	EscrowSessionComplete EscrowStatus = "session_complete"
	EscrowConfirmed       EscrowStatus = "confirmed"
	EscrowDisputed        EscrowStatus = "disputed"
	EscrowReleased        EscrowStatus = "released"
	EscrowRefunded        EscrowStatus = "refunded"
)

type DisputeResolution string

const (
	ResolutionReleasedToTrainer DisputeResolution = "released_to_trainer"
	ResolutionRefundedToParent  DisputeResolution = "refunded_to_parent"
	ResolutionPartialRefund     DisputeResolution = "partial_refund"
)

type ReleaseMethod string

const (
	ReleaseMethodTransfer      ReleaseMethod = "transfer"
	ReleaseMethodPendingManual ReleaseMethod = "pending_manual"
)

// Manual-review reasons recorded when a record needs operator attention.
const (
	ReviewPendingManualPayout = "pending_manual"
	ReviewReleaseFailed       = "release_failed"
	ReviewRefundFailed        = "refund_failed"
)

type EscrowRecord struct {
	ID        string `gorm:"primarykey;type:varchar(40)" json:"escrow_id"`
	BookingID uint   `gorm:"uniqueIndex;not null" json:"booking_id"`
	TrainerID uint   `gorm:"not null;index" json:"trainer_id"`
	ParentID  uint   `gorm:"not null;index" json:"parent_id"`

	TotalAmount       float64 `gorm:"not null" json:"total_amount"`
	PlatformFeeAmount float64 `gorm:"not null" json:"platform_fee_amount"`
	TrainerAmount     float64 `gorm:"not null" json:"trainer_amount"`

	PaymentIntentID string `gorm:"not null" json:"payment_intent_id"`
	TransferID      string `json:"transfer_id,omitempty"`
	RefundID        string `json:"refund_id,omitempty"`

	Status        EscrowStatus  `gorm:"type:varchar(20);not null;default:'holding';index" json:"status"`
	AutoConfirmed bool          `gorm:"default:false" json:"auto_confirmed"`
	ReleaseMethod ReleaseMethod `gorm:"type:varchar(20)" json:"release_method,omitempty"`

	// Operator-queue sub-state. Terminal-but-flagged records are excluded
	// from processed counts until an operator clears them.
	NeedsManualReview  bool   `gorm:"default:false;index" json:"needs_manual_review"`
	ManualReviewReason string `gorm:"type:varchar(30)" json:"manual_review_reason,omitempty"`

	DisputeReason     string            `gorm:"type:text" json:"dispute_reason,omitempty"`
	DisputeResolution DisputeResolution `gorm:"type:varchar(30)" json:"dispute_resolution,omitempty"`
	ResolutionNotes   string            `gorm:"type:text" json:"resolution_notes,omitempty"`
	ResolvedBy        *uint             `gorm:"index" json:"resolved_by,omitempty"`
	RefundAmount      float64           `json:"refund_amount,omitempty"`

	ParentRating   *int   `json:"parent_rating,omitempty"`
	ParentFeedback string `gorm:"type:text" json:"parent_feedback,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	TrainerCompletedAt *time.Time `json:"trainer_completed_at,omitempty"`
	ReleaseEligibleAt  *time.Time `gorm:"index" json:"release_eligible_at,omitempty"`
	ParentConfirmedAt  *time.Time `json:"parent_confirmed_at,omitempty"`
	DisputedAt         *time.Time `json:"disputed_at,omitempty"`
	DisputeResolvedAt  *time.Time `json:"dispute_resolved_at,omitempty"`
	ReleasedAt         *time.Time `json:"released_at,omitempty"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`

	// Relations
	Booking Booking       `gorm:"foreignKey:BookingID" json:"booking,omitempty"`
	Trainer User          `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
	Parent  User          `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Events  []EscrowEvent `gorm:"foreignKey:EscrowID" json:"events,omitempty"`
}

func (EscrowRecord) TableName() string {
	return "escrow_records"
}

// IsTerminal reports whether the record is in a final state. No transition
// is valid once terminal.
func (e *EscrowRecord) IsTerminal() bool {
	return e.Status == EscrowReleased || e.Status == EscrowRefunded
}

// CanBeDisputed reports whether a parent may still open a dispute.
func (e *EscrowRecord) CanBeDisputed() bool {
	return e.Status == EscrowHolding || e.Status == EscrowSessionComplete
}
