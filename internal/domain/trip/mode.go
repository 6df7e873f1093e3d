package trip

import (
	"errors"
	"strings"
)

// Mode is the direction of a trip.
type Mode string

const (
	ModePickup  Mode = "pickup"
	ModeDropoff Mode = "dropoff"
)

var ErrInvalidMode = errors.New("invalid trip mode")

// ParseMode normalizes (lowercases+trims) and validates a mode string.
func ParseMode(in string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(in)))
	if mode.Valid() {
		return mode, nil
	}
	return "", ErrInvalidMode
}

// Valid reports whether mode is one of the allowed mode constants.
func (mode Mode) Valid() bool {
	return mode == ModePickup || mode == ModeDropoff
}

// String returns the string representation of the Mode.
func (mode Mode) String() string {
	return string(mode)
}
