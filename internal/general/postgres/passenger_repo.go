package postgres

import (
	"context"
	"errors"
	"fmt"

	"school-bus/internal/domain/passenger"
	"school-bus/internal/ports"

	"github.com/jackc/pgx/v5"
)

// PassengerStatusRepo persists the current passenger status per (trip, student).
type PassengerStatusRepo struct{}

// NewPassengerStatusRepo constructs a new PassengerStatusRepo.
func NewPassengerStatusRepo() ports.PassengerStatusRepository {
	return &PassengerStatusRepo{}
}

const passengerColumns = `trip_id, student_id, status, method, actor_id, recorded_at, latitude, longitude, version`

// Get returns the current record, or nil when none was written yet.
func (repo *PassengerStatusRepo) Get(ctx context.Context, tripID, studentID string) (*passenger.Record, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+passengerColumns+`
		FROM passenger_statuses
		WHERE trip_id = $1 AND student_id = $2
	`, tripID, studentID)
	rec, err := scanPassenger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get passenger status %s/%s: %w", tripID, studentID, err)
	}
	return rec, nil
}

// ListForTrip returns every record written for a trip.
func (repo *PassengerStatusRepo) ListForTrip(ctx context.Context, tripID string) ([]passenger.Record, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+passengerColumns+`
		FROM passenger_statuses
		WHERE trip_id = $1
		ORDER BY student_id
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query passenger statuses: %w", err)
	}
	defer rows.Close()

	var out []passenger.Record
	for rows.Next() {
		rec, err := scanPassenger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan passenger status: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// Put inserts or replaces the record when the stored version equals expectedVersion.
// A lost race shows up as zero returned rows and maps to passenger.ErrVersionConflict.
func (repo *PassengerStatusRepo) Put(ctx context.Context, rec *passenger.Record, expectedVersion int64) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := rec.Validate(); err != nil {
		return err
	}
	lat, lng := pointArgs(rec.Location)

	var stored int64
	err = tx.QueryRow(ctx, `
		INSERT INTO passenger_statuses (`+passengerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (trip_id, student_id) DO UPDATE
		SET status = EXCLUDED.status,
		    method = EXCLUDED.method,
		    actor_id = EXCLUDED.actor_id,
		    recorded_at = EXCLUDED.recorded_at,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    version = EXCLUDED.version
		WHERE passenger_statuses.version = $10
		RETURNING version
	`,
		rec.TripID,
		rec.StudentID,
		rec.Status.String(),
		rec.Method.String(),
		rec.ActorID,
		rec.RecordedAt,
		lat, lng,
		rec.Version,
		expectedVersion,
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return passenger.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("put passenger status %s/%s: %w", rec.TripID, rec.StudentID, err)
	}

	rec.Version = stored
	return nil
}

func scanPassenger(row pgx.Row) (*passenger.Record, error) {
	var (
		out            passenger.Record
		status, method string
		lat, lng       *float64
	)
	if err := row.Scan(
		&out.TripID, &out.StudentID, &status, &method, &out.ActorID, &out.RecordedAt, &lat, &lng, &out.Version,
	); err != nil {
		return nil, err
	}
	out.Status = passenger.Status(status)
	out.Method = passenger.Method(method)
	out.Location = scannedPoint(lat, lng)
	return &out, nil
}
