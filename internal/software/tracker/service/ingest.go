package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/tracker"
	"school-bus/internal/domain/trip"
	"school-bus/internal/general/contracts"
	"school-bus/internal/general/rabbitmq"
)

// Ingest stores fix as the trip's last position when the cadence policy lets it through,
// archives it, and announces it on trip.position.{trip_id}. It reports whether fix was written.
//
// Fixes for trips that are not active are dropped with trip.ErrInvalidStateTransition;
// fixes from someone other than the trip's driver with trip.ErrNotAuthorized.
func (service *trackerService) Ingest(ctx context.Context, fix geo.Fix) (bool, error) {
	ctx = service.logger.WithTripID(service.logger.WithSchoolID(ctx, fix.SchoolID), fix.TripID)
	if err := fix.Validate(); err != nil {
		service.metrics.PositionFix("rejected")
		return false, err
	}

	var (
		t        *trip.Trip
		decision tracker.Decision
	)
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, fix.SchoolID, fix.TripID)
		if err != nil {
			return err
		}
		if t.Status != trip.StatusActive {
			return trip.ErrInvalidStateTransition
		}
		if fix.DriverID != "" && fix.DriverID != t.DriverID {
			return trip.ErrNotAuthorized
		}

		decision = service.policy.Decide(fix, t.LastPositionAt)
		if decision != tracker.Accepted {
			return nil
		}

		if err := t.UpdatePosition(fix.Point, fix.RecordedAt); err != nil {
			return err
		}
		if err := service.trips.UpdatePosition(ctx, t.ID, fix.Point, fix.RecordedAt.UTC()); err != nil {
			return err
		}
		return service.history.Archive(ctx, &fix)
	})
	if err != nil {
		service.metrics.PositionFix("rejected")
		service.logger.Error(ctx, "position_ingest_failed", "Failed to ingest driver position", err, map[string]any{
			"driver_id": fix.DriverID,
		})
		return false, err
	}

	service.metrics.PositionFix(string(decision))
	if decision != tracker.Accepted {
		service.logger.Debug(ctx, "position_skipped", "Position not written", map[string]any{
			"decision":   string(decision),
			"foreground": fix.Foreground,
		})
		return false, nil
	}

	service.publishPosition(ctx, t, fix)
	return true, nil
}

func (service *trackerService) publishPosition(ctx context.Context, t *trip.Trip, fix geo.Fix) {
	if service.pub == nil {
		return
	}
	msg := contracts.PositionUpdateMessage{
		TripID:         t.ID,
		SchoolID:       t.SchoolID,
		DriverID:       t.DriverID,
		Location:       contracts.FromPoint(fix.Point),
		SpeedKMH:       fix.SpeedKMH,
		HeadingDegrees: fix.HeadingDegrees,
		Timestamp:      fix.RecordedAt.UTC(),
		Envelope: contracts.Envelope{
			CorrelationID: generateCorrelationID(),
			Producer:      contracts.ProducerTrackerService,
			SentAt:        service.now(),
		},
	}
	routingKey := contracts.RouteTripPositionPrefix + t.ID
	if err := rabbitmq.PublishJSON(service.pub, contracts.ExchangeTripTopic, routingKey, msg); err != nil {
		service.logger.Error(ctx, "position_publish_failed", "Failed to publish position update", err, map[string]any{
			"routing_key": routingKey,
		})
	}
}

// Run feeds every fix from the position source into Ingest until ctx is cancelled.
func (service *trackerService) Run(ctx context.Context) error {
	return service.source.Subscribe(ctx, func(ctx context.Context, fix geo.Fix) error {
		_, err := service.Ingest(ctx, fix)
		return err
	})
}

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "req_" + ts + "_" + hex.EncodeToString(b[:])
}
