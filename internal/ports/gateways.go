package ports

import (
	"context"

	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/route"
)

// EventPublisher publishes an already encoded message to the broker.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// TripNotifier pushes a message to every client watching a trip.
type TripNotifier interface {
	BroadcastToTrip(tripID string, msg any)
}

// DirectionsService fetches a road route. Failures are wrapped in route.ErrDirectionsUnavailable.
type DirectionsService interface {
	Directions(ctx context.Context, req route.DirectionsRequest) (*route.Directions, error)
}

// ReplayGuard reports whether key may pass now, and records the pass when it may.
type ReplayGuard interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// PositionSource delivers live driver fixes until ctx is cancelled.
type PositionSource interface {
	Subscribe(ctx context.Context, handle func(ctx context.Context, fix geo.Fix) error) error
}
