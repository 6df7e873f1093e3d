package service

import (
	"context"
	"time"

	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/roster"
	"school-bus/internal/domain/route"
	"school-bus/internal/domain/trip"
	"school-bus/internal/general/contracts"
	"school-bus/internal/ports"
)

// PlanRoute sequences the remaining stops of a trip and resolves the current and next stop.
// A directions failure never fails the call; the plan then rests on straight-line distances.
func (service *tripService) PlanRoute(ctx context.Context, in ports.PlanRouteInput) (ports.RoutePlan, error) {
	ctx = service.logger.WithTripID(ctx, in.TripID)

	var (
		t        *trip.Trip
		students []roster.Student
		records  []passenger.Record
	)
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, in.SchoolID, in.TripID)
		if err != nil {
			return err
		}
		students, err = service.roster.ListByIDs(ctx, t.SchoolID, t.Roster)
		if err != nil {
			return err
		}
		records, err = service.passengers.ListForTrip(ctx, t.ID)
		return err
	})
	if err != nil {
		return ports.RoutePlan{}, err
	}

	// the caller's fix wins over the stored one, without touching the trip
	position := t.LastPosition
	if geo.UsablePtr(in.CurrentPosition) {
		snapshot := *t
		snapshot.LastPosition = in.CurrentPosition
		t = &snapshot
		position = in.CurrentPosition
	}

	origin, destination := route.Endpoints(t)
	stops := route.Sequence(students, passenger.Index(records), origin, destination, t.Mode)

	directions := service.fetchDirections(ctx, origin, destination, stops)
	res := route.Resolve(stops, position, directions)

	plan := ports.RoutePlan{
		TripID:         t.ID,
		Mode:           t.Mode.String(),
		Origin:         origin,
		Destination:    destination,
		Stops:          make([]ports.RouteStop, 0, len(stops)),
		CurrentStop:    toRouteStop(res.Current),
		NextStop:       toRouteStop(res.Next),
		Source:         string(res.Source),
		DirectionsUsed: !directions.Empty(),
	}
	for i := range stops {
		plan.Stops = append(plan.Stops, *toRouteStop(&stops[i]))
	}
	if !directions.Empty() {
		var total time.Duration
		for _, leg := range directions.Legs {
			plan.RoadDistanceKM += leg.DistanceKM
			total += leg.Duration
		}
		plan.RoadDurationSec = int(total.Seconds())
	}
	return plan, nil
}

// fetchDirections returns nil when no provider is configured, there is nothing to route or the call fails.
func (service *tripService) fetchDirections(ctx context.Context, origin, destination geo.Point, stops []route.Stop) *route.Directions {
	if service.directions == nil || len(stops) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, service.directionsTimeout)
	defer cancel()

	started := time.Now()
	directions, err := service.directions.Directions(ctx, route.RequestFor(origin, destination, stops))
	service.metrics.DirectionsObserved(err == nil, time.Since(started))
	if err != nil {
		service.logger.Error(ctx, "directions_failed", "Directions unavailable, falling back to straight-line sequencing", err, map[string]any{
			"stops": len(stops),
		})
		return nil
	}
	return directions
}

// pushNextStop recomputes the plan of an active trip and sends the current/next stop to the trip room.
// Errors are logged only: the push follows a write that already succeeded.
func (service *tripService) pushNextStop(ctx context.Context, schoolID, tripID string, position *geo.Point) {
	if service.notifier == nil {
		return
	}

	var status trip.Status
	if err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		t, err := service.trips.GetByID(ctx, schoolID, tripID)
		if err != nil {
			return err
		}
		status = t.Status
		return nil
	}); err != nil {
		service.logger.Error(ctx, "next_stop_failed", "Failed to load trip for next stop update", err, nil)
		return
	}
	if status != trip.StatusActive {
		return
	}

	plan, err := service.PlanRoute(ctx, ports.PlanRouteInput{SchoolID: schoolID, TripID: tripID, CurrentPosition: position})
	if err != nil {
		service.logger.Error(ctx, "next_stop_failed", "Failed to plan route for next stop update", err, nil)
		return
	}

	remaining := len(plan.Stops)
	if plan.CurrentStop != nil {
		remaining = len(plan.Stops) - plan.CurrentStop.OrderIndex
	}
	service.broadcast(tripID, contracts.WSNextStop{
		Type:      contracts.WSTypeNextStop,
		TripID:    tripID,
		Current:   toStopBrief(plan.CurrentStop),
		Next:      toStopBrief(plan.NextStop),
		Remaining: remaining,
		Source:    plan.Source,
		Timestamp: service.now(),
		Envelope:  service.envelope(generateCorrelationID()),
	})
}

func toRouteStop(stop *route.Stop) *ports.RouteStop {
	if stop == nil {
		return nil
	}
	return &ports.RouteStop{
		StudentID:              stop.Student.ID,
		Name:                   stop.Student.Name,
		Location:               *stop.Student.Location,
		OrderIndex:             stop.OrderIndex,
		DistanceFromOriginKM:   stop.DistanceFromOriginKM,
		DistanceFromPreviousKM: stop.DistanceFromPreviousKM,
	}
}

func toStopBrief(stop *ports.RouteStop) *contracts.StopBrief {
	if stop == nil {
		return nil
	}
	return &contracts.StopBrief{
		StudentID:  stop.StudentID,
		Name:       stop.Name,
		Location:   contracts.FromPoint(stop.Location),
		OrderIndex: stop.OrderIndex,
	}
}
