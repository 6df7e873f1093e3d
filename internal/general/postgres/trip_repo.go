package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/trip"
	"school-bus/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TripRepo persists trips using pgx and plain SQL.
type TripRepo struct{}

// NewTripRepo constructs a new TripRepo.
func NewTripRepo() ports.TripRepository {
	return &TripRepo{}
}

const tripColumns = `
	id, school_id, created_at, updated_at, mode, status,
	driver_id, supervisor_id, allow_driver_as_supervisor,
	school_lat, school_lng, start_lat, start_lng, last_lat, last_lng, last_position_at,
	roster, started_at, ended_at`

// Create inserts a new trip row. An ID is generated when the caller did not assign one.
func (repo *TripRepo) Create(ctx context.Context, t *trip.Trip) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	startLat, startLng := pointArgs(t.StartPosition)
	lastLat, lastLng := pointArgs(t.LastPosition)

	err = tx.QueryRow(ctx, `
		INSERT INTO trips (
			id, school_id, mode, status, driver_id, supervisor_id, allow_driver_as_supervisor,
			school_lat, school_lng, start_lat, start_lng, last_lat, last_lng, last_position_at, roster
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`,
		t.ID,
		t.SchoolID,
		t.Mode.String(),
		t.Status.String(),
		t.DriverID,
		t.SupervisorID,
		t.AllowDriverAsSupervisor,
		t.School.Latitude,
		t.School.Longitude,
		startLat, startLng,
		lastLat, lastLng,
		t.LastPositionAt,
		t.Roster,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}

	return nil
}

// GetByID fetches a trip of a school by primary key.
func (repo *TripRepo) GetByID(ctx context.Context, schoolID, id string) (*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	// malformed ids can never match a uuid column
	if _, err := uuid.Parse(id); err != nil {
		return nil, trip.ErrNotFound
	}

	row := tx.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1 AND school_id = $2`, id, schoolID)
	out, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trip.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip %s: %w", id, err)
	}
	return out, nil
}

// ListActive returns the active trips of a school, oldest start first.
func (repo *TripRepo) ListActive(ctx context.Context, schoolID string) ([]*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE school_id = $1 AND status = 'active'
		ORDER BY started_at, id
	`, schoolID)
	if err != nil {
		return nil, fmt.Errorf("query active trips: %w", err)
	}
	defer rows.Close()

	var trips []*trip.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return trips, nil
}

// UpdateLifecycle writes status, lifecycle timestamps and position snapshots.
// The stored status is locked and re-checked so concurrent starts or ends cannot both win.
func (repo *TripRepo) UpdateLifecycle(ctx context.Context, t *trip.Trip) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM trips WHERE id = $1 FOR UPDATE`, t.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return trip.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock trip %s: %w", t.ID, err)
	}
	if !trip.Status(current).CanTransitionTo(t.Status) {
		return trip.ErrInvalidStateTransition
	}

	startLat, startLng := pointArgs(t.StartPosition)
	lastLat, lastLng := pointArgs(t.LastPosition)

	err = tx.QueryRow(ctx, `
		UPDATE trips
		SET status = $2,
		    start_lat = $3, start_lng = $4,
		    last_lat = $5, last_lng = $6, last_position_at = $7,
		    started_at = $8, ended_at = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`,
		t.ID,
		t.Status.String(),
		startLat, startLng,
		lastLat, lastLng, t.LastPositionAt,
		t.StartedAt, t.EndedAt,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update trip %s: %w", t.ID, err)
	}

	return nil
}

// UpdatePosition stores the latest driver position of an active trip. Older fixes are ignored.
func (repo *TripRepo) UpdatePosition(ctx context.Context, tripID string, p geo.Point, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE trips
		SET last_lat = $2, last_lng = $3, last_position_at = $4, updated_at = now()
		WHERE id = $1
		  AND status = 'active'
		  AND (last_position_at IS NULL OR last_position_at <= $4)
	`, tripID, p.Latitude, p.Longitude, at.UTC())
	if err != nil {
		return fmt.Errorf("update position of trip %s: %w", tripID, err)
	}
	if tag.RowsAffected() == 0 {
		return trip.ErrInvalidStateTransition
	}

	return nil
}

// UpdateSupervision writes the supervisor assignment and the driver supervision flag.
func (repo *TripRepo) UpdateSupervision(ctx context.Context, t *trip.Trip) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		UPDATE trips
		SET supervisor_id = $2, allow_driver_as_supervisor = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, t.ID, t.SupervisorID, t.AllowDriverAsSupervisor).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return trip.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update supervision of trip %s: %w", t.ID, err)
	}

	return nil
}

// ----- internal helpers -----

func scanTrip(row pgx.Row) (*trip.Trip, error) {
	var (
		out                  trip.Trip
		mode, status         string
		startLat, startLng   *float64
		lastLat, lastLng     *float64
		schoolLat, schoolLng float64
	)

	err := row.Scan(
		&out.ID, &out.SchoolID, &out.CreatedAt, &out.UpdatedAt, &mode, &status,
		&out.DriverID, &out.SupervisorID, &out.AllowDriverAsSupervisor,
		&schoolLat, &schoolLng, &startLat, &startLng, &lastLat, &lastLng, &out.LastPositionAt,
		&out.Roster, &out.StartedAt, &out.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	out.Mode = trip.Mode(mode)
	out.Status = trip.Status(status)
	out.School = geo.Point{Latitude: schoolLat, Longitude: schoolLng}
	out.StartPosition = scannedPoint(startLat, startLng)
	out.LastPosition = scannedPoint(lastLat, lastLng)

	return &out, nil
}
