package ports

import (
	"context"
	"time"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/roster"
	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TripRepository defines the methods for managing trip data. Reads are scoped by school.
type TripRepository interface {
	Create(ctx context.Context, t *trip.Trip) error
	GetByID(ctx context.Context, schoolID, id string) (*trip.Trip, error)
	// UpdateLifecycle persists status, lifecycle timestamps and position snapshots.
	UpdateLifecycle(ctx context.Context, t *trip.Trip) error
	UpdatePosition(ctx context.Context, tripID string, p geo.Point, at time.Time) error
	UpdateSupervision(ctx context.Context, t *trip.Trip) error
	ListActive(ctx context.Context, schoolID string) ([]*trip.Trip, error)
}

// RosterRepository defines the methods for reading student records.
type RosterRepository interface {
	ListByIDs(ctx context.Context, schoolID string, ids []string) ([]roster.Student, error)
}

// PassengerStatusRepository stores the current record per (trip, student).
type PassengerStatusRepository interface {
	// Get returns nil and no error when the student has no record yet.
	Get(ctx context.Context, tripID, studentID string) (*passenger.Record, error)
	ListForTrip(ctx context.Context, tripID string) ([]passenger.Record, error)
	// Put replaces the record if the stored version still equals expectedVersion
	// (0 for "no record"), otherwise it returns passenger.ErrVersionConflict.
	Put(ctx context.Context, rec *passenger.Record, expectedVersion int64) error
}

// ProfileRepository defines the methods for managing crew profiles.
type ProfileRepository interface {
	GetByID(ctx context.Context, schoolID, id string) (*user.Profile, error)
	SetSupervisorMode(ctx context.Context, p *user.Profile) error
}

// BulkOperationRepository defines the methods for persisting bulk check-in items.
type BulkOperationRepository interface {
	Insert(ctx context.Context, op *bulk.Operation) error
	Update(ctx context.Context, op *bulk.Operation) error
	ListBatch(ctx context.Context, schoolID, batchID string) ([]bulk.Operation, error)
}

// TripEventRepository defines the methods for managing the trip audit trail.
type TripEventRepository interface {
	Append(ctx context.Context, e *trip.Event) error
}

// PositionHistoryRepository archives accepted driver fixes.
type PositionHistoryRepository interface {
	Archive(ctx context.Context, fix *geo.Fix) error
}
