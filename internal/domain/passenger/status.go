package passenger

import (
	"errors"
	"strings"
)

// Status is a student's boarding state within one trip.
type Status string

const (
	StatusPending Status = "pending"
	StatusBoarded Status = "boarded"
	StatusDropped Status = "dropped"
	StatusAbsent  Status = "absent"
	StatusNoShow  Status = "no_show"
)

var ErrInvalidStatus = errors.New("invalid passenger status")

// ParseStatus normalizes (lowercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed passenger status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusBoarded, StatusDropped, StatusAbsent, StatusNoShow:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if a passenger may move from status to next.
// Re-boarding is always allowed so a crew can correct a mis-scan; pending is only ever initial.
func (status Status) CanTransitionTo(next Status) bool {
	if next == StatusBoarded {
		return true
	}
	if next == status {
		return next != StatusPending
	}

	switch status {
	case StatusPending:
		// dropoff trips start from pending and go straight to dropped
		return next == StatusAbsent || next == StatusNoShow || next == StatusDropped

	case StatusBoarded:
		return next == StatusDropped || next == StatusAbsent

	case StatusDropped, StatusAbsent, StatusNoShow:
		return false

	default:
		return false
	}
}
