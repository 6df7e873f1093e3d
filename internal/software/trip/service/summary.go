package service

import (
	"context"

	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/trip"
	"school-bus/internal/ports"
)

var summaryStatuses = []passenger.Status{
	passenger.StatusPending,
	passenger.StatusBoarded,
	passenger.StatusDropped,
	passenger.StatusAbsent,
	passenger.StatusNoShow,
}

// TripSummary counts roster students per passenger status. Students without a record count as pending.
func (service *tripService) TripSummary(ctx context.Context, schoolID, tripID string) (ports.TripSummary, error) {
	var (
		t       *trip.Trip
		records []passenger.Record
	)
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, schoolID, tripID)
		if err != nil {
			return err
		}
		records, err = service.passengers.ListForTrip(ctx, t.ID)
		return err
	})
	if err != nil {
		return ports.TripSummary{}, err
	}

	counts := make(map[string]int, len(summaryStatuses))
	for _, status := range summaryStatuses {
		counts[status.String()] = 0
	}
	index := passenger.Index(records)
	for _, studentID := range t.Roster {
		counts[passenger.CurrentStatus(index, studentID).String()]++
	}

	return ports.TripSummary{
		TripID:     t.ID,
		Mode:       t.Mode.String(),
		Status:     t.Status.String(),
		RosterSize: len(t.Roster),
		Counts:     counts,
		StartedAt:  t.StartedAt,
		EndedAt:    t.EndedAt,
	}, nil
}
