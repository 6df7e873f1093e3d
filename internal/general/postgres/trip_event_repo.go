package postgres

import (
	"context"
	"fmt"

	"school-bus/internal/domain/trip"
	"school-bus/internal/ports"
)

// TripEventRepo persists trip events using pgx and plain SQL.
type TripEventRepo struct{}

// NewTripEventRepo constructs a new TripEventRepo.
func NewTripEventRepo() ports.TripEventRepository {
	return &TripEventRepo{}
}

// Append inserts a new trip_events row.
func (repo *TripEventRepo) Append(ctx context.Context, event *trip.Event) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return err
	}

	data, err := event.DataJSON()
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trip_events (trip_id, actor_id, event_type, event_data)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING id, created_at
	`,
		event.TripID,
		event.ActorID,
		event.Type.String(),
		string(data),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trip event %s: %w", event.Type, err)
	}

	return nil
}
