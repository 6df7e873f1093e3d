package postgres

import (
	"context"
	"fmt"

	"school-bus/internal/domain/geo"
	"school-bus/internal/ports"
)

// PositionHistoryRepo archives accepted driver fixes.
type PositionHistoryRepo struct{}

// NewPositionHistoryRepo constructs a new PositionHistoryRepo.
func NewPositionHistoryRepo() ports.PositionHistoryRepository {
	return &PositionHistoryRepo{}
}

// Archive inserts a single trip_positions record.
func (repo *PositionHistoryRepo) Archive(ctx context.Context, fix *geo.Fix) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := fix.Validate(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trip_positions (
			trip_id, driver_id, latitude, longitude,
			accuracy_meters, speed_kmh, heading_degrees,
			foreground, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		fix.TripID,
		fix.DriverID,
		fix.Point.Latitude,
		fix.Point.Longitude,
		fix.AccuracyMeters,
		fix.SpeedKMH,
		fix.HeadingDegrees,
		fix.Foreground,
		fix.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("archive position for trip %s: %w", fix.TripID, err)
	}

	return nil
}
