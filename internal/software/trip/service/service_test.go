package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/route"
	"school-bus/internal/domain/scan"
	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/general/contracts"
	"school-bus/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTrip(t *testing.T) {
	cases := []struct {
		name     string
		actor    ports.Actor
		driverID string
		roster   []string
		wantErr  error
	}{
		{"admin for any driver", admin, driverID, []string{"A"}, nil},
		{"driver for themself", driver, "", []string{"A"}, nil},
		{"driver for someone else", driver, "driver-2", []string{"A"}, trip.ErrNotAuthorized},
		{"supervisor", supervisor, driverID, []string{"A"}, trip.ErrNotAuthorized},
		{"unknown roster student", admin, driverID, []string{"A", "Z"}, trip.ErrUnknownStudent},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.addStudent("A", north(1))

			res, err := f.svc.CreateTrip(context.Background(), ports.CreateTripInput{
				Actor:    c.actor,
				Mode:     trip.ModePickup,
				DriverID: c.driverID,
				School:   schoolLocation,
				Roster:   c.roster,
			})
			if c.wantErr != nil {
				assert.ErrorIs(t, err, c.wantErr)
				assert.Empty(t, f.store.eventsOf(trip.EventTripCreated))
				assert.Empty(t, f.publisher.keys())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "scheduled", res.Status)
			assert.Equal(t, driverID, res.DriverID)
			assert.Len(t, f.store.eventsOf(trip.EventTripCreated), 1)
			assert.Equal(t, []string{"trip.status.scheduled"}, f.publisher.keys())
		})
	}
}

func TestTripLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)

	_, err := f.svc.StartTrip(ctx, ports.StartTripInput{Actor: driver, TripID: tripID})
	assert.ErrorIs(t, err, trip.ErrPositionRequired)

	stranger := ports.Actor{ID: "driver-2", SchoolID: schoolID, Role: user.RoleDriver}
	_, err = f.svc.StartTrip(ctx, ports.StartTripInput{Actor: stranger, TripID: tripID, DriverPosition: north(0.5)})
	assert.ErrorIs(t, err, trip.ErrNotAuthorized)
	assert.Equal(t, trip.StatusScheduled, f.store.trip(tripID).Status)

	res, err := f.svc.StartTrip(ctx, ports.StartTripInput{Actor: driver, TripID: tripID, DriverPosition: north(0.5)})
	require.NoError(t, err)
	assert.Equal(t, "active", res.Status)
	require.NotNil(t, res.StartPosition)
	assert.Equal(t, *north(0.5), *res.StartPosition)

	_, err = f.svc.StartTrip(ctx, ports.StartTripInput{Actor: driver, TripID: tripID, DriverPosition: north(0.5)})
	assert.ErrorIs(t, err, trip.ErrInvalidStateTransition)

	res, err = f.svc.EndTrip(ctx, ports.EndTripInput{Actor: supervisor, TripID: tripID})
	require.NoError(t, err)
	assert.Equal(t, "ended", res.Status)

	_, err = f.svc.EndTrip(ctx, ports.EndTripInput{Actor: driver, TripID: tripID})
	assert.ErrorIs(t, err, trip.ErrInvalidStateTransition)

	_, err = f.svc.StartTrip(ctx, ports.StartTripInput{Actor: admin, TripID: "missing", DriverPosition: north(1)})
	assert.ErrorIs(t, err, trip.ErrNotFound)

	assert.Equal(t, []string{"trip.status.scheduled", "trip.status.active", "trip.status.ended"}, f.publisher.keys())
	assert.Len(t, f.store.eventsOf(trip.EventTripStarted), 1)
	assert.Len(t, f.store.eventsOf(trip.EventTripEnded), 1)
	assert.NotEmpty(t, sent[contracts.WSNextStop](f.notifier), "start pushes the first stop")
}

func TestSetPassengerStatusAuthorization(t *testing.T) {
	cases := []struct {
		name    string
		actor   ports.Actor
		setup   func(t *testing.T, f *fixture, tripID string)
		wantErr error
	}{
		{name: "assigned supervisor", actor: supervisor},
		{name: "driver without supervisor mode", actor: driver, wantErr: trip.ErrNotAuthorized},
		{
			name:  "driver with profile supervisor mode",
			actor: driver,
			setup: func(_ *testing.T, f *fixture, _ string) {
				f.store.addProfile(driverID, user.RoleDriver, true)
			},
		},
		{
			name:  "driver with trip flag",
			actor: driver,
			setup: func(t *testing.T, f *fixture, tripID string) {
				_, err := f.svc.SetDriverSupervision(context.Background(), ports.SetDriverSupervisionInput{
					Actor: admin, TripID: tripID, Allow: true,
				})
				require.NoError(t, err)
			},
		},
		{name: "admin is not crew", actor: admin, wantErr: trip.ErrNotAuthorized},
		{
			name:    "other driver",
			actor:   ports.Actor{ID: "driver-2", SchoolID: schoolID, Role: user.RoleDriver},
			wantErr: trip.ErrNotAuthorized,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			tripID := f.seedTrip(t, trip.ModePickup)
			f.startTrip(t, tripID)
			if c.setup != nil {
				c.setup(t, f, tripID)
			}

			res, err := f.svc.SetPassengerStatus(context.Background(), ports.SetPassengerStatusInput{
				Actor:     c.actor,
				TripID:    tripID,
				StudentID: "A",
				Status:    passenger.StatusBoarded,
				Method:    passenger.MethodManual,
			})
			if c.wantErr != nil {
				assert.ErrorIs(t, err, c.wantErr)
				assert.Zero(t, f.store.recordCount(), "rejected writes leave no record")
				assert.Empty(t, f.store.eventsOf(trip.EventPassengerStatusChanged))
				assert.Empty(t, sent[contracts.WSPassengerStatus](f.notifier))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "boarded", res.Status)
			assert.Equal(t, "pending", res.PreviousStatus)
			assert.EqualValues(t, 1, res.Version)
		})
	}
}

func TestSetPassengerStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)
	f.startTrip(t, tripID)

	set := func(studentID string, status passenger.Status) (ports.PassengerStatusResult, error) {
		return f.svc.SetPassengerStatus(ctx, ports.SetPassengerStatusInput{
			Actor: supervisor, TripID: tripID, StudentID: studentID, Status: status, Method: passenger.MethodManual,
		})
	}

	_, err := set("Z", passenger.StatusBoarded)
	assert.ErrorIs(t, err, trip.ErrUnknownStudent)

	res, err := set("A", passenger.StatusBoarded)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Version)

	res, err = set("A", passenger.StatusDropped)
	require.NoError(t, err)
	assert.Equal(t, "boarded", res.PreviousStatus)
	assert.EqualValues(t, 2, res.Version)

	_, err = set("A", passenger.StatusAbsent)
	assert.ErrorIs(t, err, trip.ErrInvalidStateTransition)

	res, err = set("A", passenger.StatusBoarded)
	require.NoError(t, err, "re-boarding is allowed")
	assert.Equal(t, "dropped", res.PreviousStatus)
	assert.EqualValues(t, 3, res.Version)

	events := f.store.eventsOf(trip.EventPassengerStatusChanged)
	require.Len(t, events, 3)
	assert.Equal(t, "dropped", events[2].Data["previous_status"])
	assert.Equal(t, supervisorID, events[2].ActorID)

	assert.Contains(t, f.publisher.keys(), "passenger.status.dropped")

	_, err = f.svc.EndTrip(ctx, ports.EndTripInput{Actor: driver, TripID: tripID})
	require.NoError(t, err)
	_, err = set("B", passenger.StatusBoarded)
	assert.ErrorIs(t, err, trip.ErrInvalidStateTransition, "ended trips are frozen")
}

func TestSetPassengerStatusLostRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)
	f.startTrip(t, tripID)

	input := func(status passenger.Status) ports.SetPassengerStatusInput {
		return ports.SetPassengerStatusInput{
			Actor: supervisor, TripID: tripID, StudentID: "A", Status: status, Method: passenger.MethodManual,
		}
	}

	var (
		winner    ports.PassengerStatusResult
		winnerErr error
	)
	repo := &interleavedPassengers{fakePassengers: fakePassengers{f.store}}
	repo.beforePut = func() {
		winner, winnerErr = f.svc.SetPassengerStatus(ctx, input(passenger.StatusBoarded))
	}
	f.svc.passengers = repo

	_, err := f.svc.SetPassengerStatus(ctx, input(passenger.StatusAbsent))
	assert.ErrorIs(t, err, passenger.ErrVersionConflict)

	require.NoError(t, winnerErr)
	assert.Equal(t, "boarded", winner.Status)
	assert.EqualValues(t, 1, winner.Version)

	stored, err := repo.Get(ctx, tripID, "A")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, passenger.StatusBoarded, stored.Status)
	assert.EqualValues(t, 1, stored.Version)

	events := f.store.eventsOf(trip.EventPassengerStatusChanged)
	require.Len(t, events, 1, "only the winner is audited")
	assert.Equal(t, "boarded", events[0].Data["status"])

	assert.NotContains(t, f.publisher.keys(), "passenger.status.absent")
	assert.Contains(t, f.publisher.keys(), "passenger.status.boarded")
	require.Len(t, sent[contracts.WSPassengerStatus](f.notifier), 1)
	assert.Equal(t, "boarded", sent[contracts.WSPassengerStatus](f.notifier)[0].Status)
}

func TestIngestScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)
	f.startTrip(t, tripID)

	scanRaw := func(raw string) (ports.ScanOutcome, error) {
		return f.svc.IngestScan(ctx, ports.ScanInput{Actor: supervisor, TripID: tripID, Raw: raw})
	}

	out, err := scanRaw(`{"studentId":"A"}`)
	require.NoError(t, err)
	assert.Equal(t, ports.ScanApplied, out.Kind)
	assert.Equal(t, ports.FeedbackSuccess, out.Feedback)
	assert.Equal(t, "Student A", out.StudentName)
	assert.Equal(t, "boarded", out.Status)

	out, err = scanRaw("A")
	require.NoError(t, err, "a repeat inside the window is not an error")
	assert.Equal(t, ports.ScanSuppressed, out.Kind)
	assert.Equal(t, ports.FeedbackNone, out.Feedback)

	out, err = scanRaw("Z")
	assert.ErrorIs(t, err, scan.ErrUnknownCode)
	assert.Equal(t, ports.ScanUnknownCode, out.Kind)
	assert.Equal(t, ports.FeedbackError, out.Feedback)

	_, err = scanRaw("   ")
	assert.ErrorIs(t, err, scan.ErrUnknownCode)

	summary, err := f.svc.TripSummary(ctx, schoolID, tripID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counts["boarded"])
	assert.Equal(t, 2, summary.Counts["pending"])

	feedback := sent[contracts.WSScanFeedback](f.notifier)
	require.Len(t, feedback, 3, "suppressed scans send no feedback")
	assert.Equal(t, "success", feedback[0].Feedback)
	assert.Equal(t, "unknown_code", feedback[1].Kind)

	records := sent[contracts.WSPassengerStatus](f.notifier)
	require.Len(t, records, 1)
	assert.Equal(t, "qr", records[0].Method)
}

func TestIngestScanDropoffDropsAndUnauthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModeDropoff)
	f.startTrip(t, tripID)

	out, err := f.svc.IngestScan(ctx, ports.ScanInput{Actor: driver, TripID: tripID, Raw: "B"})
	assert.ErrorIs(t, err, trip.ErrNotAuthorized)
	assert.Equal(t, ports.ScanFailed, out.Kind)
	assert.Zero(t, f.store.recordCount())

	out, err = f.svc.IngestScan(ctx, ports.ScanInput{Actor: supervisor, TripID: tripID, Raw: "C"})
	require.NoError(t, err)
	assert.Equal(t, "dropped", out.Status)
}

func TestSubmitBulk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)
	f.startTrip(t, tripID)

	res, err := f.svc.SubmitBulk(ctx, ports.SubmitBulkInput{
		Actor:  supervisor,
		TripID: tripID,
		Intents: []bulk.Intent{
			{StudentID: "A", Action: bulk.ActionBoarding},
			{StudentID: "A", Action: bulk.ActionDropping},
			{StudentID: "Z", Action: bulk.ActionBoarding},
			{StudentID: "B", Action: bulk.ActionBoarding},
			{StudentID: "C", Action: bulk.Action("teleport")},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, res.Items, 4)
	assert.Equal(t, res.Processed+res.Failed, len(res.Items))

	assert.Equal(t, "completed", res.Items[0].Status)
	assert.Equal(t, "failed", res.Items[1].Status)
	require.NotNil(t, res.Items[1].Error)
	assert.Equal(t, trip.ErrUnknownStudent.Error(), *res.Items[1].Error)
	assert.Equal(t, "failed", res.Items[3].Status)

	summary, err := f.svc.TripSummary(ctx, schoolID, tripID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Counts["boarded"])

	batch, err := f.svc.GetBatch(ctx, schoolID, res.BatchID)
	require.NoError(t, err)
	assert.Len(t, batch.Items, 3, "invalid intents are never persisted")
	assert.Equal(t, 2, batch.Processed)
	assert.Equal(t, 1, batch.Failed)

	done := sent[contracts.WSBulkCompleted](f.notifier)
	require.Len(t, done, 1)
	assert.Equal(t, res.BatchID, done[0].BatchID)
	assert.Contains(t, f.publisher.keys(), "bulk.batch."+tripID)
	assert.Len(t, f.store.eventsOf(trip.EventBulkBatchSubmitted), 1)

	records := sent[contracts.WSPassengerStatus](f.notifier)
	require.Len(t, records, 2)
	assert.Equal(t, "manual", records[0].Method)
}

func TestSubmitBulkReportsUnsavedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)
	f.startTrip(t, tripID)
	f.svc.bulkOps = lossyBulkOps{fakeBulkOps: fakeBulkOps{f.store}, studentID: "B"}

	res, err := f.svc.SubmitBulk(ctx, ports.SubmitBulkInput{
		Actor:  supervisor,
		TripID: tripID,
		Intents: []bulk.Intent{
			{StudentID: "A", Action: bulk.ActionBoarding},
			{StudentID: "B", Action: bulk.ActionBoarding},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	assert.Nil(t, res.Items[0].Error)
	assert.Equal(t, "completed", res.Items[1].Status, "the status change itself went through")
	require.NotNil(t, res.Items[1].Error)
	assert.Contains(t, *res.Items[1].Error, "operation record not saved")
	assert.Contains(t, *res.Items[1].Error, "connection reset")

	batch, err := f.svc.GetBatch(ctx, schoolID, res.BatchID)
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, "A", batch.Items[0].StudentID)
}

func TestSubmitBulkRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)
	f.startTrip(t, tripID)

	_, err := f.svc.SubmitBulk(ctx, ports.SubmitBulkInput{Actor: driver, TripID: tripID})
	assert.ErrorIs(t, err, trip.ErrNotAuthorized, "authorization is checked before emptiness")

	_, err = f.svc.SubmitBulk(ctx, ports.SubmitBulkInput{Actor: driver, TripID: tripID, Intents: []bulk.Intent{
		{StudentID: "A", Action: bulk.ActionBoarding},
	}})
	assert.ErrorIs(t, err, trip.ErrNotAuthorized)

	_, err = f.svc.SubmitBulk(ctx, ports.SubmitBulkInput{Actor: supervisor, TripID: tripID})
	assert.ErrorIs(t, err, bulk.ErrEmptyBatch)

	assert.Zero(t, f.store.recordCount())
	assert.Empty(t, f.store.ops)

	_, err = f.svc.GetBatch(ctx, schoolID, "unknown")
	assert.ErrorIs(t, err, bulk.ErrBatchNotFound)
}

func TestPlanRoute(t *testing.T) {
	ctx := context.Background()

	t.Run("nearest neighbour from the school", func(t *testing.T) {
		f := newFixture(t)
		tripID := f.seedTrip(t, trip.ModePickup)
		f.startTrip(t, tripID)

		plan, err := f.svc.PlanRoute(ctx, ports.PlanRouteInput{SchoolID: schoolID, TripID: tripID})
		require.NoError(t, err)

		require.Len(t, plan.Stops, 3)
		assert.Equal(t, "A", plan.Stops[0].StudentID)
		assert.Equal(t, "C", plan.Stops[1].StudentID)
		assert.Equal(t, "B", plan.Stops[2].StudentID)
		require.NotNil(t, plan.CurrentStop)
		assert.Equal(t, "A", plan.CurrentStop.StudentID)
		assert.Equal(t, "C", plan.NextStop.StudentID)
		assert.Equal(t, "position", plan.Source)
		assert.False(t, plan.DirectionsUsed)
	})

	t.Run("caller position overrides the stored one", func(t *testing.T) {
		f := newFixture(t)
		tripID := f.seedTrip(t, trip.ModePickup)
		f.startTrip(t, tripID)

		plan, err := f.svc.PlanRoute(ctx, ports.PlanRouteInput{SchoolID: schoolID, TripID: tripID, CurrentPosition: north(2.6)})
		require.NoError(t, err)
		require.Len(t, plan.Stops, 3)
		assert.Equal(t, "B", plan.Stops[0].StudentID)
		require.NotNil(t, plan.CurrentStop)
		assert.Equal(t, "B", plan.CurrentStop.StudentID)
		assert.Equal(t, "C", plan.NextStop.StudentID)
		assert.Equal(t, *north(2.6), plan.Origin)
		assert.Equal(t, schoolLocation, *f.store.trip(tripID).LastPosition, "stored trip untouched")
	})

	t.Run("boarded students drop out of a dropoff", func(t *testing.T) {
		f := newFixture(t)
		tripID := f.seedTrip(t, trip.ModeDropoff)
		f.startTrip(t, tripID)
		_, err := f.svc.SetPassengerStatus(ctx, ports.SetPassengerStatusInput{
			Actor: supervisor, TripID: tripID, StudentID: "A", Status: passenger.StatusDropped, Method: passenger.MethodManual,
		})
		require.NoError(t, err)

		plan, err := f.svc.PlanRoute(ctx, ports.PlanRouteInput{SchoolID: schoolID, TripID: tripID})
		require.NoError(t, err)
		require.Len(t, plan.Stops, 2)
		assert.Equal(t, "C", plan.Stops[0].StudentID)
	})

	t.Run("directions pick the current stop", func(t *testing.T) {
		f := newFixture(t)
		dir := &stubDirections{result: &route.Directions{Legs: []route.Leg{
			{Start: schoolLocation, End: *north(2.95), DistanceKM: 3.2, Duration: 5 * time.Minute},
			{Start: *north(2.95), End: schoolLocation, DistanceKM: 3.1, Duration: 4 * time.Minute},
		}}}
		f.svc.directions = dir
		tripID := f.seedTrip(t, trip.ModePickup)
		f.startTrip(t, tripID)

		plan, err := f.svc.PlanRoute(ctx, ports.PlanRouteInput{SchoolID: schoolID, TripID: tripID})
		require.NoError(t, err)
		assert.Equal(t, "directions", plan.Source)
		assert.True(t, plan.DirectionsUsed)
		assert.Equal(t, "B", plan.CurrentStop.StudentID)
		assert.Nil(t, plan.NextStop)
		assert.InDelta(t, 6.3, plan.RoadDistanceKM, 1e-9)
		assert.Equal(t, 540, plan.RoadDurationSec)
	})

	t.Run("directions failure falls back", func(t *testing.T) {
		f := newFixture(t)
		f.svc.directions = &stubDirections{err: errors.Join(route.ErrDirectionsUnavailable, errors.New("boom"))}
		tripID := f.seedTrip(t, trip.ModePickup)
		f.startTrip(t, tripID)

		plan, err := f.svc.PlanRoute(ctx, ports.PlanRouteInput{SchoolID: schoolID, TripID: tripID})
		require.NoError(t, err)
		assert.False(t, plan.DirectionsUsed)
		assert.Equal(t, "position", plan.Source)
		assert.Len(t, plan.Stops, 3)
	})

	t.Run("unknown trip", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.PlanRoute(ctx, ports.PlanRouteInput{SchoolID: schoolID, TripID: "missing"})
		assert.ErrorIs(t, err, trip.ErrNotFound)
	})
}

func TestTripSummaryCountsMissingAsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)

	summary, err := f.svc.TripSummary(ctx, schoolID, tripID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.RosterSize)
	assert.Equal(t, map[string]int{"pending": 3, "boarded": 0, "dropped": 0, "absent": 0, "no_show": 0}, summary.Counts)

	_, err = f.svc.TripSummary(ctx, "school-2", tripID)
	assert.ErrorIs(t, err, trip.ErrNotFound, "trips are scoped by school")
}

func TestSetDriverSupervision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tripID := f.seedTrip(t, trip.ModePickup)

	res, err := f.svc.SetDriverSupervision(ctx, ports.SetDriverSupervisionInput{Actor: admin, TripID: tripID, Allow: true})
	require.NoError(t, err)
	assert.True(t, res.CanSupervise)
	assert.False(t, res.Gained, "scheduled trips never announce")

	_, err = f.svc.SetDriverSupervision(ctx, ports.SetDriverSupervisionInput{Actor: admin, TripID: tripID, Allow: false})
	require.NoError(t, err)
	f.startTrip(t, tripID)

	_, err = f.svc.SetDriverSupervision(ctx, ports.SetDriverSupervisionInput{
		Actor: ports.Actor{ID: "driver-2", SchoolID: schoolID, Role: user.RoleDriver}, TripID: tripID, Allow: true,
	})
	assert.ErrorIs(t, err, trip.ErrNotAuthorized)

	res, err = f.svc.SetDriverSupervision(ctx, ports.SetDriverSupervisionInput{Actor: driver, TripID: tripID, Allow: true})
	require.NoError(t, err)
	assert.True(t, res.Gained)
	assert.True(t, f.store.trip(tripID).AllowDriverAsSupervisor)

	enabled := sent[contracts.WSSupervisionEnabled](f.notifier)
	require.Len(t, enabled, 1)
	assert.Equal(t, "trip", enabled[0].Source)
	assert.Equal(t, driverID, enabled[0].ActorID)
	assert.Contains(t, f.publisher.keys(), "trip.supervision."+tripID)
	assert.Len(t, f.store.eventsOf(trip.EventSupervisionChanged), 3)
}

func TestSetSupervisorMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.seedTrip(t, trip.ModePickup)
	f.startTrip(t, active)
	scheduled := f.seedTrip(t, trip.ModeDropoff)

	res, err := f.svc.SetSupervisorMode(ctx, ports.SetSupervisorModeInput{Actor: driver, Enabled: true})
	require.NoError(t, err)
	assert.True(t, res.Enabled)
	assert.True(t, res.Gained)

	enabled := sent[contracts.WSSupervisionEnabled](f.notifier)
	require.Len(t, enabled, 1, "only the active trip is announced")
	assert.Equal(t, active, enabled[0].TripID)
	assert.Equal(t, "profile", enabled[0].Source)
	assert.NotEqual(t, scheduled, enabled[0].TripID)

	res, err = f.svc.SetSupervisorMode(ctx, ports.SetSupervisorModeInput{Actor: driver, Enabled: true})
	require.NoError(t, err)
	assert.False(t, res.Gained, "no flip, no announcement")

	_, err = f.svc.SetSupervisorMode(ctx, ports.SetSupervisorModeInput{
		Actor: ports.Actor{ID: "ghost", SchoolID: schoolID, Role: user.RoleDriver}, Enabled: true,
	})
	assert.ErrorIs(t, err, user.ErrProfileNotFound)
}

func TestHandlePositionUpdate(t *testing.T) {
	f := newFixture(t)
	tripID := f.seedTrip(t, trip.ModePickup)
	f.startTrip(t, tripID)

	err := f.svc.handlePositionUpdate(context.Background(), contracts.PositionUpdateMessage{
		TripID:    tripID,
		SchoolID:  schoolID,
		Location:  contracts.FromPoint(*north(2.9)),
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	locations := sent[contracts.WSDriverLocation](f.notifier)
	require.Len(t, locations, 1)
	assert.InDelta(t, north(2.9).Latitude, locations[0].Location.Lat, 1e-9)

	stops := sent[contracts.WSNextStop](f.notifier)
	require.NotEmpty(t, stops)
	last := stops[len(stops)-1]
	require.NotNil(t, last.Current)
	assert.Equal(t, "B", last.Current.StudentID)
	require.NotNil(t, last.Next)
	assert.Equal(t, "C", last.Next.StudentID)
	assert.Equal(t, 3, last.Remaining)

	err = f.svc.handlePositionUpdate(context.Background(), contracts.PositionUpdateMessage{
		TripID: "missing", SchoolID: schoolID, Location: contracts.FromPoint(schoolLocation),
	})
	assert.NoError(t, err, "unknown trips are acknowledged")
}

func TestPushNextStopSkipsInactiveTrips(t *testing.T) {
	f := newFixture(t)
	tripID := f.seedTrip(t, trip.ModePickup)

	f.svc.pushNextStop(context.Background(), schoolID, tripID, &geo.Point{Latitude: 40.01, Longitude: -74.0})
	assert.Empty(t, sent[contracts.WSNextStop](f.notifier))
}
