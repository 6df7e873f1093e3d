package service

import (
	"context"
	"fmt"
	"strings"

	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/trip"
	"school-bus/internal/general/contracts"
	"school-bus/internal/ports"
)

// SetPassengerStatus replaces one student's status on a trip.
//
// Checks run in order and before any write: roster membership, supervision rights, trip still
// open, and the passenger transition rule. The write is a compare-and-swap on the record version,
// so a concurrent writer on the same student surfaces as passenger.ErrVersionConflict.
func (service *tripService) SetPassengerStatus(ctx context.Context, in ports.SetPassengerStatusInput) (ports.PassengerStatusResult, error) {
	res, err := service.setPassengerStatus(ctx, in)
	if err != nil {
		return ports.PassengerStatusResult{}, err
	}
	service.pushNextStop(ctx, in.Actor.SchoolID, in.TripID, nil)
	return res, nil
}

// setPassengerStatus is SetPassengerStatus without the route push, shared with scans and bulk items.
func (service *tripService) setPassengerStatus(ctx context.Context, in ports.SetPassengerStatusInput) (ports.PassengerStatusResult, error) {
	ctx = service.logger.WithTripID(ctx, in.TripID)
	correlationID := generateCorrelationID()
	studentID := strings.TrimSpace(in.StudentID)

	var (
		t        *trip.Trip
		rec      *passenger.Record
		previous = passenger.StatusPending
	)
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, in.Actor.SchoolID, in.TripID)
		if err != nil {
			return err
		}
		if !t.HasStudent(studentID) {
			return trip.ErrUnknownStudent
		}

		profile, err := service.loadProfile(ctx, t.SchoolID, in.Actor.ID)
		if err != nil {
			return err
		}
		if !trip.CanSupervise(t, in.Actor.ID, profile) {
			return trip.ErrNotAuthorized
		}
		if !t.AcceptsPassengerWrites() {
			return trip.ErrInvalidStateTransition
		}

		current, err := service.passengers.Get(ctx, t.ID, studentID)
		if err != nil {
			return err
		}
		var expected int64
		if current != nil {
			previous = current.Status
			expected = current.Version
		}
		if !previous.CanTransitionTo(in.Status) {
			return fmt.Errorf("%w: %s -> %s", trip.ErrInvalidStateTransition, previous, in.Status)
		}

		rec, err = passenger.NewRecord(current, t.ID, studentID, in.Status, in.Method, in.Actor.ID, in.Location, service.now())
		if err != nil {
			return err
		}
		if err := service.passengers.Put(ctx, rec, expected); err != nil {
			return err
		}

		data := map[string]any{
			"student_id":      studentID,
			"status":          rec.Status.String(),
			"previous_status": previous.String(),
			"method":          rec.Method.String(),
			"version":         rec.Version,
		}
		if rec.Location != nil {
			data["location"] = *rec.Location
		}
		return service.appendEvent(ctx, t.ID, in.Actor.ID, trip.EventPassengerStatusChanged, data)
	})
	if err != nil {
		service.logger.Error(ctx, "passenger_status_failed", "Failed to set passenger status", err, map[string]any{
			"student_id": studentID,
			"status":     in.Status.String(),
			"actor_id":   in.Actor.ID,
			"request_id": correlationID,
		})
		return ports.PassengerStatusResult{}, err
	}

	service.metrics.PassengerStatus(rec.Status.String(), rec.Method.String())

	env := service.envelope(correlationID)
	service.publish(ctx, contracts.RoutePassengerStatusPrefix+rec.Status.String(), contracts.PassengerStatusMessage{
		TripID:         t.ID,
		SchoolID:       t.SchoolID,
		StudentID:      studentID,
		Status:         rec.Status.String(),
		PreviousStatus: previous.String(),
		Method:         rec.Method.String(),
		ActorID:        in.Actor.ID,
		Version:        rec.Version,
		Timestamp:      rec.RecordedAt,
		Envelope:       env,
	})
	service.broadcast(t.ID, contracts.WSPassengerStatus{
		Type:           contracts.WSTypePassengerStatus,
		TripID:         t.ID,
		StudentID:      studentID,
		Status:         rec.Status.String(),
		PreviousStatus: previous.String(),
		Method:         rec.Method.String(),
		Timestamp:      rec.RecordedAt,
		Envelope:       env,
	})

	service.logger.Info(ctx, "passenger_status_set", "Passenger status replaced", map[string]any{
		"student_id":      studentID,
		"status":          rec.Status.String(),
		"previous_status": previous.String(),
		"method":          rec.Method.String(),
		"version":         rec.Version,
		"request_id":      correlationID,
	})

	return ports.PassengerStatusResult{
		TripID:         t.ID,
		StudentID:      studentID,
		Status:         rec.Status.String(),
		PreviousStatus: previous.String(),
		Method:         rec.Method.String(),
		RecordedAt:     rec.RecordedAt,
		Version:        rec.Version,
	}, nil
}
