package service

import (
	"context"
	"fmt"

	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/ports"
)

// StartTrip moves a SCHEDULED trip to ACTIVE at the driver's current position.
func (service *tripService) StartTrip(ctx context.Context, in ports.StartTripInput) (ports.TripResult, error) {
	ctx = service.logger.WithTripID(ctx, in.TripID)
	correlationID := generateCorrelationID()

	t, err := service.transition(ctx, in.Actor, in.TripID, trip.EventTripStarted, func(t *trip.Trip) error {
		return t.Start(in.DriverPosition)
	})
	if err != nil {
		service.logger.Error(ctx, "trip_start_failed", "Failed to start trip", err, map[string]any{
			"actor_id":   in.Actor.ID,
			"request_id": correlationID,
		})
		return ports.TripResult{}, err
	}

	service.metrics.TripTransition(t.Status.String())
	service.publishTripStatus(ctx, t, in.Actor.ID, correlationID)
	service.pushNextStop(ctx, t.SchoolID, t.ID, nil)

	service.logger.Info(ctx, "trip_started", fmt.Sprintf("Trip %s started", t.ID), map[string]any{
		"actor_id":   in.Actor.ID,
		"request_id": correlationID,
	})
	return toTripResult(t), nil
}

// EndTrip moves an ACTIVE trip to ENDED. Passenger statuses are frozen from then on.
func (service *tripService) EndTrip(ctx context.Context, in ports.EndTripInput) (ports.TripResult, error) {
	ctx = service.logger.WithTripID(ctx, in.TripID)
	correlationID := generateCorrelationID()

	t, err := service.transition(ctx, in.Actor, in.TripID, trip.EventTripEnded, func(t *trip.Trip) error {
		return t.End()
	})
	if err != nil {
		service.logger.Error(ctx, "trip_end_failed", "Failed to end trip", err, map[string]any{
			"actor_id":   in.Actor.ID,
			"request_id": correlationID,
		})
		return ports.TripResult{}, err
	}

	service.metrics.TripTransition(t.Status.String())
	service.publishTripStatus(ctx, t, in.Actor.ID, correlationID)

	service.logger.Info(ctx, "trip_ended", fmt.Sprintf("Trip %s ended", t.ID), map[string]any{
		"actor_id":   in.Actor.ID,
		"request_id": correlationID,
	})
	return toTripResult(t), nil
}

// transition loads the trip, checks the actor may operate it, applies step and persists the result
// together with its audit event.
func (service *tripService) transition(
	ctx context.Context,
	actor ports.Actor,
	tripID string,
	eventType trip.EventType,
	step func(t *trip.Trip) error,
) (*trip.Trip, error) {
	var t *trip.Trip
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, actor.SchoolID, tripID)
		if err != nil {
			return err
		}
		if actor.Role != user.RoleAdmin && !trip.CanOperate(t, actor.ID) {
			return trip.ErrNotAuthorized
		}

		from := t.Status
		if err := step(t); err != nil {
			return err
		}
		if err := service.trips.UpdateLifecycle(ctx, t); err != nil {
			return err
		}

		data := map[string]any{"from": from.String(), "to": t.Status.String()}
		if t.StartPosition != nil && t.Status == trip.StatusActive {
			data["start_position"] = *t.StartPosition
		}
		return service.appendEvent(ctx, t.ID, actor.ID, eventType, data)
	})
	return t, err
}
