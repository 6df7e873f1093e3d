package trip

import (
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"
)

// Event is the domain entity corresponding to the `trip_events` table.
// Passenger status records only keep the latest value, so the events form the audit trail.
type Event struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time

	// Foreign keys
	TripID  string
	ActorID string

	// Core payload
	Type EventType
	Data map[string]any
}

var (
	ErrTripIDRequired = errors.New("trip id is required")
	ErrEventDataNil   = errors.New("event data must not be nil")
)

// NewEvent constructs a new domain Event.
func NewEvent(tripID, actorID string, eventType EventType, eventData map[string]any) (*Event, error) {
	if tripID = strings.TrimSpace(tripID); tripID == "" {
		return nil, ErrTripIDRequired
	}
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}
	if eventData == nil {
		return nil, ErrEventDataNil
	}

	return &Event{
		TripID:    tripID,
		ActorID:   strings.TrimSpace(actorID),
		Type:      eventType,
		Data:      cloneMap(eventData),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Validate performs basic invariants checks mirroring DB constraints.
func (event *Event) Validate() error {
	if event.TripID == "" {
		return ErrTripIDRequired
	}
	if !event.Type.Valid() {
		return ErrInvalidEventType
	}
	if event.Data == nil {
		return ErrEventDataNil
	}
	return nil
}

// DataJSON returns event.Data encoded as JSON.
func (event *Event) DataJSON() ([]byte, error) {
	if event.Data == nil {
		return nil, ErrEventDataNil
	}
	return json.Marshal(event.Data)
}

// WithField sets/overwrites a single key in Data.
func (event *Event) WithField(key string, value any) {
	if event.Data == nil {
		event.Data = make(map[string]any)
	}
	event.Data[key] = value
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	maps.Copy(dst, src)
	return dst
}
