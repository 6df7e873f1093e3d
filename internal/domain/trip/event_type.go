package trip

import (
	"errors"
	"strings"
)

// EventType corresponds to the values in the `trip_event_type` table.
type EventType string

const (
	EventTripCreated            EventType = "TRIP_CREATED"
	EventTripStarted            EventType = "TRIP_STARTED"
	EventTripEnded              EventType = "TRIP_ENDED"
	EventPassengerStatusChanged EventType = "PASSENGER_STATUS_CHANGED"
	EventSupervisionChanged     EventType = "SUPERVISION_CHANGED"
	EventPositionUpdated        EventType = "POSITION_UPDATED"
	EventBulkBatchSubmitted     EventType = "BULK_BATCH_SUBMITTED"
)

var ErrInvalidEventType = errors.New("invalid trip event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventTripCreated,
		EventTripStarted,
		EventTripEnded,
		EventPassengerStatusChanged,
		EventSupervisionChanged,
		EventPositionUpdated,
		EventBulkBatchSubmitted:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}
