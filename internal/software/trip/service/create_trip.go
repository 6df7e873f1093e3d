package service

import (
	"context"
	"fmt"
	"strings"

	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/ports"
)

// CreateTrip opens a shift: a SCHEDULED trip for one driver over a roster of the caller's school.
// Admins may create trips for any driver; a driver only for themself.
func (service *tripService) CreateTrip(ctx context.Context, in ports.CreateTripInput) (ports.TripResult, error) {
	correlationID := generateCorrelationID()

	driverID := strings.TrimSpace(in.DriverID)
	if driverID == "" && in.Actor.Role == user.RoleDriver {
		driverID = in.Actor.ID
	}
	if in.Actor.Role != user.RoleAdmin && !(in.Actor.Role == user.RoleDriver && driverID == in.Actor.ID) {
		return ports.TripResult{}, trip.ErrNotAuthorized
	}

	t, err := trip.NewTrip(in.Actor.SchoolID, driverID, in.Mode, in.School, in.Roster)
	if err != nil {
		return ports.TripResult{}, err
	}
	t.ID = service.newID()
	t.AssignSupervisor(in.SupervisorID)
	t.SetAllowDriverAsSupervisor(in.AllowDriverAsSupervisor)

	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		// every roster id must be a student of this school
		students, err := service.roster.ListByIDs(ctx, t.SchoolID, t.Roster)
		if err != nil {
			return err
		}
		if len(students) != len(t.Roster) {
			known := make(map[string]struct{}, len(students))
			for _, s := range students {
				known[s.ID] = struct{}{}
			}
			for _, id := range t.Roster {
				if _, ok := known[id]; !ok {
					return fmt.Errorf("%w: %s", trip.ErrUnknownStudent, id)
				}
			}
		}

		if err := service.trips.Create(ctx, t); err != nil {
			return err
		}

		return service.appendEvent(ctx, t.ID, in.Actor.ID, trip.EventTripCreated, map[string]any{
			"mode":          t.Mode.String(),
			"driver_id":     t.DriverID,
			"supervisor_id": t.SupervisorID,
			"roster_size":   len(t.Roster),
		})
	})
	if err != nil {
		service.logger.Error(ctx, "trip_create_failed", "Failed to create trip", err, map[string]any{
			"driver_id":  driverID,
			"request_id": correlationID,
		})
		return ports.TripResult{}, err
	}

	service.publishTripStatus(ctx, t, in.Actor.ID, correlationID)

	service.logger.Info(service.logger.WithTripID(ctx, t.ID), "trip_created", fmt.Sprintf("Trip %s created", t.ID), map[string]any{
		"mode":        t.Mode.String(),
		"driver_id":   t.DriverID,
		"roster_size": len(t.Roster),
		"request_id":  correlationID,
	})

	return toTripResult(t), nil
}
