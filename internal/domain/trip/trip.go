package trip

import (
	"errors"
	"slices"
	"strings"
	"time"

	"school-bus/internal/domain/geo"
)

// Trip is the domain entity corresponding to the `trips` table.
type Trip struct {
	// Identity & audit
	ID        string
	SchoolID  string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Core state
	Mode   Mode
	Status Status

	// Crew
	DriverID                string
	SupervisorID            *string // nil when no supervisor is assigned
	AllowDriverAsSupervisor bool

	// Positions
	School         geo.Point
	StartPosition  *geo.Point
	LastPosition   *geo.Point
	LastPositionAt *time.Time

	// Roster holds the ordered student IDs riding this trip.
	Roster []string

	// Lifecycle timestamps
	StartedAt *time.Time
	EndedAt   *time.Time
}

var (
	ErrNotFound                = errors.New("trip not found")
	ErrSchoolRequired          = errors.New("school id is required")
	ErrDriverRequired          = errors.New("driver id is required")
	ErrInvalidStateTransition  = errors.New("invalid trip status transition")
	ErrPositionRequired        = errors.New("a known driver position is required")
	ErrUnknownStudent          = errors.New("student is not on this trip's roster")
	ErrNotAuthorized           = errors.New("actor is not allowed to supervise this trip")
	ErrDuplicateRosterEntry    = errors.New("roster lists the same student twice")
	ErrInvalidSchoolCoordinate = errors.New("school location is not a usable coordinate")
)

// NewTrip creates a trip in SCHEDULED state.
func NewTrip(schoolID, driverID string, mode Mode, school geo.Point, roster []string) (*Trip, error) {
	if schoolID = strings.TrimSpace(schoolID); schoolID == "" {
		return nil, ErrSchoolRequired
	}
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverRequired
	}
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if !school.Usable() {
		return nil, ErrInvalidSchoolCoordinate
	}

	seen := make(map[string]struct{}, len(roster))
	ids := make([]string, 0, len(roster))
	for _, id := range roster {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicateRosterEntry
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	now := time.Now().UTC()
	return &Trip{
		SchoolID:  schoolID,
		CreatedAt: now,
		UpdatedAt: now,
		Mode:      mode,
		Status:    StatusScheduled,
		DriverID:  driverID,
		School:    school,
		Roster:    ids,
	}, nil
}

// AssignSupervisor sets or clears (empty id) the trip supervisor.
func (trip *Trip) AssignSupervisor(supervisorID string) {
	if supervisorID = strings.TrimSpace(supervisorID); supervisorID == "" {
		trip.SupervisorID = nil
	} else {
		trip.SupervisorID = &supervisorID
	}
	trip.touch()
}

// SetAllowDriverAsSupervisor toggles the trip-level driver supervision flag.
func (trip *Trip) SetAllowDriverAsSupervisor(allow bool) {
	trip.AllowDriverAsSupervisor = allow
	trip.touch()
}

// Start transitions SCHEDULED -> ACTIVE and snapshots the driver's position.
func (trip *Trip) Start(driverPosition *geo.Point) error {
	if !geo.UsablePtr(driverPosition) {
		return ErrPositionRequired
	}
	if !trip.Status.CanTransitionTo(StatusActive) {
		return ErrInvalidStateTransition
	}

	now := time.Now().UTC()
	pos := *driverPosition
	last := pos
	trip.StartedAt = &now
	trip.StartPosition = &pos
	trip.LastPosition = &last
	trip.LastPositionAt = &now
	trip.setStatus(StatusActive)
	return nil
}

// End transitions ACTIVE -> ENDED.
func (trip *Trip) End() error {
	if !trip.Status.CanTransitionTo(StatusEnded) {
		return ErrInvalidStateTransition
	}
	now := time.Now().UTC()
	trip.EndedAt = &now
	trip.setStatus(StatusEnded)
	return nil
}

// UpdatePosition records the driver's latest known position.
func (trip *Trip) UpdatePosition(position geo.Point, at time.Time) error {
	if !position.Usable() {
		return ErrPositionRequired
	}
	if trip.Status != StatusActive {
		return ErrInvalidStateTransition
	}
	at = at.UTC()
	trip.LastPosition = &position
	trip.LastPositionAt = &at
	trip.touch()
	return nil
}

// HasStudent reports whether studentID is a roster member.
func (trip *Trip) HasStudent(studentID string) bool {
	return slices.Contains(trip.Roster, strings.TrimSpace(studentID))
}

// AcceptsPassengerWrites reports whether passenger statuses may still change.
func (trip *Trip) AcceptsPassengerWrites() bool {
	return !trip.Status.Terminal()
}

// ----- internal helpers -----

func (trip *Trip) setStatus(status Status) {
	trip.Status = status
	trip.touch()
}

func (trip *Trip) touch() {
	trip.UpdatedAt = time.Now().UTC()
}
