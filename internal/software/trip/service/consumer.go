package service

import (
	"context"
	"encoding/json"
	"fmt"

	"school-bus/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunBackgroundConsumers starts the consumers that mirror tracker output into the trip rooms.
func (service *tripService) RunBackgroundConsumers(ctx context.Context) {
	if service.consumer == nil {
		return
	}
	service.startPositionConsumer(ctx)
}

// startPositionConsumer forwards accepted fixes to watchers and recomputes the next stop.
func (service *tripService) startPositionConsumer(ctx context.Context) {
	go service.consumer.ConsumeForever(
		ctx,
		service.logger,
		contracts.QueueTripPositions, // queue to consume from
		"trip-service-positions",     // consumer tag
		20,                           // prefetch count
		func(ctx context.Context, d amqp.Delivery) error {
			var msg contracts.PositionUpdateMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				service.logger.Error(ctx, "position_decode_failed",
					"Failed to decode position update message", err,
					map[string]any{"size": len(d.Body)})
				return fmt.Errorf("decode: %w", err)
			}
			if msg.TripID == "" {
				return nil
			}
			return service.handlePositionUpdate(ctx, msg)
		},
	)
}

// handlePositionUpdate never fails on a missing trip: redelivery would not fix it.
func (service *tripService) handlePositionUpdate(ctx context.Context, msg contracts.PositionUpdateMessage) error {
	ctx = service.logger.WithTripID(service.logger.WithSchoolID(ctx, msg.SchoolID), msg.TripID)
	position := msg.Location.Point()

	service.broadcast(msg.TripID, contracts.WSDriverLocation{
		Type:      contracts.WSTypeDriverLocation,
		TripID:    msg.TripID,
		Location:  msg.Location,
		Timestamp: msg.Timestamp,
		Envelope:  service.envelope(msg.CorrelationID),
	})
	service.pushNextStop(ctx, msg.SchoolID, msg.TripID, &position)
	return nil
}
