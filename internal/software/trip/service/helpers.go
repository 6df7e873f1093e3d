package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/general/contracts"
	"school-bus/internal/general/rabbitmq"
	"school-bus/internal/ports"

	"github.com/google/uuid"
)

func newUUID() string {
	return uuid.NewString()
}

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "req_" + ts + "_" + hex.EncodeToString(b[:])
}

func (service *tripService) envelope(correlationID string) contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: correlationID,
		Producer:      contracts.ProducerTripService,
		SentAt:        service.now(),
	}
}

// publish sends v to the trip exchange. Broker failures are logged, never returned:
// the write they describe has already committed.
func (service *tripService) publish(ctx context.Context, routingKey string, v any) {
	if service.pub == nil {
		return
	}
	if err := rabbitmq.PublishJSON(service.pub, contracts.ExchangeTripTopic, routingKey, v); err != nil {
		service.logger.Error(ctx, "event_publish_failed", "Failed to publish trip event to RabbitMQ", err, map[string]any{
			"routing_key": routingKey,
		})
		return
	}
	service.logger.Debug(ctx, "event_published", "Published trip event to RabbitMQ", map[string]any{
		"routing_key": routingKey,
	})
}

func (service *tripService) broadcast(tripID string, msg any) {
	if service.notifier != nil {
		service.notifier.BroadcastToTrip(tripID, msg)
	}
}

// appendEvent writes one audit row; it must run inside a transaction.
func (service *tripService) appendEvent(ctx context.Context, tripID, actorID string, eventType trip.EventType, data map[string]any) error {
	event, err := trip.NewEvent(tripID, actorID, eventType, data)
	if err != nil {
		return err
	}
	return service.events.Append(ctx, event)
}

// loadProfile returns nil when the actor has no profile row.
func (service *tripService) loadProfile(ctx context.Context, schoolID, actorID string) (*user.Profile, error) {
	profile, err := service.profiles.GetByID(ctx, schoolID, actorID)
	if errors.Is(err, user.ErrProfileNotFound) {
		return nil, nil
	}
	return profile, err
}

// publishTripStatus mirrors a lifecycle change to the broker and the trip room.
func (service *tripService) publishTripStatus(ctx context.Context, t *trip.Trip, actorID, correlationID string) {
	env := service.envelope(correlationID)
	service.publish(ctx, contracts.RouteTripStatusPrefix+strings.ToLower(t.Status.String()), contracts.TripStatusMessage{
		TripID:    t.ID,
		SchoolID:  t.SchoolID,
		Mode:      t.Mode.String(),
		Status:    t.Status.String(),
		ActorID:   actorID,
		Timestamp: t.UpdatedAt,
		Envelope:  env,
	})
	service.broadcast(t.ID, contracts.WSTripStatus{
		Type:      contracts.WSTypeTripStatus,
		TripID:    t.ID,
		Status:    t.Status.String(),
		Timestamp: t.UpdatedAt,
		Envelope:  env,
	})
}

func toTripResult(t *trip.Trip) ports.TripResult {
	return ports.TripResult{
		TripID:                  t.ID,
		Mode:                    t.Mode.String(),
		Status:                  t.Status.String(),
		DriverID:                t.DriverID,
		SupervisorID:            t.SupervisorID,
		AllowDriverAsSupervisor: t.AllowDriverAsSupervisor,
		RosterSize:              len(t.Roster),
		School:                  t.School,
		StartPosition:           t.StartPosition,
		LastPosition:            t.LastPosition,
		CreatedAt:               t.CreatedAt,
		StartedAt:               t.StartedAt,
		EndedAt:                 t.EndedAt,
	}
}
