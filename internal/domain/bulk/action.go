package bulk

import (
	"errors"
	"strings"

	"school-bus/internal/domain/passenger"
)

// Action is the check-in or check-out intent of one bulk item.
type Action string

const (
	ActionBoarding Action = "boarding"
	ActionDropping Action = "dropping"
)

var ErrInvalidAction = errors.New("invalid bulk action")

// ParseAction normalizes (lowercases+trims) and validates an action string.
func ParseAction(in string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(in)))
	if action.Valid() {
		return action, nil
	}
	return "", ErrInvalidAction
}

// Valid reports whether action is one of the allowed action constants.
func (action Action) Valid() bool {
	return action == ActionBoarding || action == ActionDropping
}

// String returns the string representation of the Action.
func (action Action) String() string {
	return string(action)
}

// TargetStatus maps the action to the passenger status it applies.
func (action Action) TargetStatus() passenger.Status {
	if action == ActionDropping {
		return passenger.StatusDropped
	}
	return passenger.StatusBoarded
}
