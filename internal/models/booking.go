package models

import "time"

type BookingStatus string

const (
	BookingScheduled BookingStatus = "scheduled"
	BookingCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Booking is owned by the booking side of the platform; escrow reads it to
// validate parties and session timing, and the webhook handler folds
// processor events into its payment status.
type Booking struct {
	ID        uint `gorm:"primarykey" json:"id"`
	TrainerID uint `gorm:"not null;index" json:"trainer_id"`
	ParentID  uint `gorm:"not null;index" json:"parent_id"`

	SessionDate  string    `gorm:"not null" json:"session_date"` // YYYY-MM-DD
	StartTime    string    `gorm:"not null" json:"start_time"`   // HH:MM
	SessionEndAt time.Time `gorm:"not null" json:"session_end_at"`

	Status          BookingStatus `gorm:"type:varchar(20);not null;default:'scheduled'" json:"status"`
	PaymentStatus   PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	PaymentIntentID string        `gorm:"index" json:"payment_intent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Trainer User `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
	Parent  User `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}
