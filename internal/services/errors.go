package services

import "errors"

// Validation errors are rejected before any mutation.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrMissingReason = errors.New("dispute reason is required")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrTooEarly      = errors.New("session has not ended yet")
)

// State errors: the operation is a no-op and the record is left unchanged.
var (
	ErrAlreadyProcessed  = errors.New("escrow already processed")
	ErrInvalidTransition = errors.New("invalid escrow state for this operation")
	ErrNotFound          = errors.New("escrow not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrNotAllowed        = errors.New("not authorized for this escrow operation")
)
