package appointment

import "errors"

// Malformed input. Reported to the caller, never retried.
var (
	ErrInvalidRange    = errors.New("slot start must be before its end")
	ErrInvalidArgument = errors.New("invalid argument")
)

// State races. The caller may retry with a fresh selection; the services never retry on their own.
var (
	ErrSlotUnavailable = errors.New("slot is not available")
	ErrAlreadyCanceled = errors.New("appointment is already canceled")
	ErrNotBooked       = errors.New("slot is not booked")
	ErrConflict        = errors.New("conflicting record already exists")
	ErrInvalidState    = errors.New("invalid state for this operation")
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
)
