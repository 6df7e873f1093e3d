package service

import (
	"context"

	"school-bus/internal/domain/trip"
	"school-bus/internal/ports"
)

func (service *tripService) GetTrip(ctx context.Context, schoolID, tripID string) (ports.TripResult, error) {
	var t *trip.Trip
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, schoolID, tripID)
		return err
	})
	if err != nil {
		return ports.TripResult{}, err
	}
	return toTripResult(t), nil
}

// ListActiveTrips returns the school's ACTIVE trips, oldest start first.
func (service *tripService) ListActiveTrips(ctx context.Context, schoolID string) ([]ports.TripResult, error) {
	var trips []*trip.Trip
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		trips, err = service.trips.ListActive(ctx, schoolID)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "active_trips_failed", "Failed to list active trips", err, map[string]any{
			"school_id": schoolID,
		})
		return nil, err
	}

	out := make([]ports.TripResult, 0, len(trips))
	for _, t := range trips {
		out = append(out, toTripResult(t))
	}
	return out, nil
}
