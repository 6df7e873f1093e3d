package passenger

import (
	"errors"
	"strings"
	"time"

	"school-bus/internal/domain/geo"
)

// Record is the current status of one student on one trip.
// There is at most one Record per (TripID, StudentID); a write replaces the previous one.
type Record struct {
	TripID     string
	StudentID  string
	Status     Status
	Method     Method
	ActorID    string
	RecordedAt time.Time
	Location   *geo.Point

	// Version increases by one on every replace and guards concurrent writers.
	Version int64
}

var (
	ErrTripIDRequired    = errors.New("trip id is required")
	ErrStudentIDRequired = errors.New("student id is required")
	ErrActorRequired     = errors.New("actor id is required")
	ErrVersionConflict   = errors.New("passenger status was changed concurrently")
)

// NewRecord builds the record that will replace current (nil when the student has none yet).
func NewRecord(current *Record, tripID, studentID string, status Status, method Method, actorID string, location *geo.Point, at time.Time) (*Record, error) {
	rec := &Record{
		TripID:     strings.TrimSpace(tripID),
		StudentID:  strings.TrimSpace(studentID),
		Status:     status,
		Method:     method,
		ActorID:    strings.TrimSpace(actorID),
		RecordedAt: at.UTC(),
		Version:    1,
	}
	if geo.UsablePtr(location) {
		loc := *location
		rec.Location = &loc
	}
	if current != nil {
		rec.Version = current.Version + 1
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks invariants of the Record.
func (rec *Record) Validate() error {
	if rec.TripID == "" {
		return ErrTripIDRequired
	}
	if rec.StudentID == "" {
		return ErrStudentIDRequired
	}
	if !rec.Status.Valid() {
		return ErrInvalidStatus
	}
	if !rec.Method.Valid() {
		return ErrInvalidMethod
	}
	if rec.ActorID == "" {
		return ErrActorRequired
	}
	return nil
}

// CurrentStatus returns the effective status of a student, treating a missing record as pending.
func CurrentStatus(records map[string]Record, studentID string) Status {
	if rec, ok := records[studentID]; ok && rec.Status.Valid() {
		return rec.Status
	}
	return StatusPending
}

// Index maps student IDs to their current record.
func Index(records []Record) map[string]Record {
	out := make(map[string]Record, len(records))
	for _, r := range records {
		out[r.StudentID] = r
	}
	return out
}
