package service

import (
	"context"
	"fmt"

	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/general/contracts"
	"school-bus/internal/ports"
)

const (
	supervisionSourceTrip    = "trip"
	supervisionSourceProfile = "profile"
)

// SetDriverSupervision toggles the trip-level flag that lets the driver act as supervisor.
func (service *tripService) SetDriverSupervision(ctx context.Context, in ports.SetDriverSupervisionInput) (ports.SupervisionResult, error) {
	ctx = service.logger.WithTripID(ctx, in.TripID)
	correlationID := generateCorrelationID()

	var (
		t             *trip.Trip
		before, after bool
	)
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, in.Actor.SchoolID, in.TripID)
		if err != nil {
			return err
		}
		if in.Actor.Role != user.RoleAdmin && !trip.CanOperate(t, in.Actor.ID) {
			return trip.ErrNotAuthorized
		}
		driverProfile, err := service.loadProfile(ctx, t.SchoolID, t.DriverID)
		if err != nil {
			return err
		}

		before = trip.CanSupervise(t, t.DriverID, driverProfile)
		t.SetAllowDriverAsSupervisor(in.Allow)
		after = trip.CanSupervise(t, t.DriverID, driverProfile)

		if err := service.trips.UpdateSupervision(ctx, t); err != nil {
			return err
		}
		return service.appendEvent(ctx, t.ID, in.Actor.ID, trip.EventSupervisionChanged, map[string]any{
			"source":  supervisionSourceTrip,
			"enabled": in.Allow,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "supervision_update_failed", "Failed to update driver supervision", err, map[string]any{
			"actor_id":   in.Actor.ID,
			"request_id": correlationID,
		})
		return ports.SupervisionResult{}, err
	}

	gained := trip.SupervisionGained(before, after, t.Status)
	if gained {
		service.announceSupervision(ctx, t, t.DriverID, supervisionSourceTrip, correlationID)
	}

	service.logger.Info(ctx, "supervision_updated", fmt.Sprintf("Driver supervision on trip %s set to %t", t.ID, in.Allow), map[string]any{
		"actor_id":   in.Actor.ID,
		"gained":     gained,
		"request_id": correlationID,
	})
	return ports.SupervisionResult{
		TripID:       t.ID,
		Enabled:      in.Allow,
		CanSupervise: after,
		Gained:       gained,
	}, nil
}

// SetSupervisorMode toggles the caller's own standing supervisor-mode flag. Every active trip
// the caller drives is re-evaluated, and each one where boarding controls become available is announced.
func (service *tripService) SetSupervisorMode(ctx context.Context, in ports.SetSupervisorModeInput) (ports.SupervisionResult, error) {
	correlationID := generateCorrelationID()

	var (
		profile *user.Profile
		gained  []*trip.Trip
	)
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		profile, err = service.profiles.GetByID(ctx, in.Actor.SchoolID, in.Actor.ID)
		if err != nil {
			return err
		}
		active, err := service.trips.ListActive(ctx, in.Actor.SchoolID)
		if err != nil {
			return err
		}

		previous := *profile
		profile.SetSupervisorMode(in.Enabled)
		if err := service.profiles.SetSupervisorMode(ctx, profile); err != nil {
			return err
		}

		for _, t := range active {
			if t.DriverID != profile.ID {
				continue
			}
			before := trip.CanSupervise(t, profile.ID, &previous)
			after := trip.CanSupervise(t, profile.ID, profile)
			if trip.SupervisionGained(before, after, t.Status) {
				gained = append(gained, t)
			}
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "supervisor_mode_failed", "Failed to update supervisor mode", err, map[string]any{
			"actor_id":   in.Actor.ID,
			"request_id": correlationID,
		})
		return ports.SupervisionResult{}, err
	}

	for _, t := range gained {
		service.announceSupervision(service.logger.WithTripID(ctx, t.ID), t, profile.ID, supervisionSourceProfile, correlationID)
	}

	service.logger.Info(ctx, "supervisor_mode_updated", fmt.Sprintf("Supervisor mode of %s set to %t", profile.ID, in.Enabled), map[string]any{
		"trips_gained": len(gained),
		"request_id":   correlationID,
	})
	return ports.SupervisionResult{
		ProfileID:    profile.ID,
		Enabled:      profile.SupervisorModeEnabled,
		CanSupervise: profile.SupervisorModeEnabled,
		Gained:       len(gained) > 0,
	}, nil
}

// announceSupervision tells the driver app to surface boarding controls and records the flip on the broker.
func (service *tripService) announceSupervision(ctx context.Context, t *trip.Trip, actorID, source, correlationID string) {
	env := service.envelope(correlationID)
	service.broadcast(t.ID, contracts.WSSupervisionEnabled{
		Type:     contracts.WSTypeSupervisionEnabled,
		TripID:   t.ID,
		ActorID:  actorID,
		Source:   source,
		Envelope: env,
	})
	service.publish(ctx, contracts.RouteTripSupervisionPrefix+t.ID, contracts.SupervisionMessage{
		TripID:    t.ID,
		SchoolID:  t.SchoolID,
		ActorID:   actorID,
		Source:    source,
		Enabled:   true,
		Timestamp: service.now(),
		Envelope:  env,
	})
}
