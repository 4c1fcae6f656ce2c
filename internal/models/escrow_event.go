package models

import "time"

type EscrowEventType string

const (
	EventHoldCreated      EscrowEventType = "hold_created"
	EventTrainerCompleted EscrowEventType = "trainer_completed"
	EventParentConfirmed  EscrowEventType = "parent_confirmed"
	EventAutoConfirmed    EscrowEventType = "auto_confirmed"
	EventDisputed         EscrowEventType = "disputed"
	EventReleasePending   EscrowEventType = "release_pending"
	EventFundsReleased    EscrowEventType = "funds_released"
	EventReleaseFailed    EscrowEventType = "release_failed"
	EventFundsRefunded    EscrowEventType = "funds_refunded"
	EventRefundFailed     EscrowEventType = "refund_failed"
	EventDisputeResolved  EscrowEventType = "dispute_resolved"
	EventReviewCleared    EscrowEventType = "manual_review_cleared"
	EventEvidenceAttached EscrowEventType = "evidence_attached"
)

// EscrowEvent is an append-only audit entry. Rows are written once and never
// updated or deleted; the trail doubles as dispute evidence.
type EscrowEvent struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	EscrowID    string          `gorm:"not null;index;type:varchar(40)" json:"escrow_id"`
	EventType   EscrowEventType `gorm:"type:varchar(40);not null" json:"event_type"`
	Message     string          `gorm:"type:text" json:"message"`
	ActorUserID *uint           `json:"actor_user_id,omitempty"` // nil for system-initiated events
	CreatedAt   time.Time       `json:"created_at"`
}

func (EscrowEvent) TableName() string {
	return "escrow_events"
}
