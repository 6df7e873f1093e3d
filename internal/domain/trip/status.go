package trip

import (
	"errors"
	"strings"
)

// Status is the lifecycle state of a trip.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
)

var ErrInvalidStatus = errors.New("invalid trip status")

// ParseStatus normalizes (lowercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed trip status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusScheduled, StatusActive, StatusEnded:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
// Trip status only moves forward.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusScheduled:
		return next == StatusActive
	case StatusActive:
		return next == StatusEnded
	default:
		return false
	}
}

// Terminal indicates if the status is terminal.
func (status Status) Terminal() bool {
	return status == StatusEnded
}
