package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	FullName string `gorm:"not null" json:"full_name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `gorm:"not null" json:"-"`

	Role string `gorm:"default:'parent'" json:"role"` // 'parent', 'trainer' or 'admin'

	// Trainer payout fields, populated by connect-account onboarding and
	// kept current by account.updated webhook events.
	PayoutAccountID string `gorm:"index" json:"payout_account_id,omitempty"`
	PayoutCapable   bool   `gorm:"default:false" json:"payout_capable"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to set default role
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = "parent"
	}
	return nil
}

// IsAdmin checks if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
