package service

import (
	"context"
	"time"

	"school-bus/internal/general/logger"
	"school-bus/internal/general/metrics"
	"school-bus/internal/general/rabbitmq"
	"school-bus/internal/ports"
)

// queueConsumer is the part of *rabbitmq.Client the background consumer needs.
type queueConsumer interface {
	ConsumeForever(ctx context.Context, log *logger.Logger, queue, consumerTag string, prefetch int, handler rabbitmq.Handler)
}

// Deps lists the collaborators of the trip service. Directions, Consumer and Metrics may be nil.
type Deps struct {
	Logger     *logger.Logger
	UoW        ports.UnitOfWork
	Trips      ports.TripRepository
	Roster     ports.RosterRepository
	Passengers ports.PassengerStatusRepository
	Profiles   ports.ProfileRepository
	BulkOps    ports.BulkOperationRepository
	Events     ports.TripEventRepository
	Publisher  ports.EventPublisher
	Notifier   ports.TripNotifier
	Directions ports.DirectionsService
	Replay     ports.ReplayGuard
	Consumer   queueConsumer
	Metrics    *metrics.Collector
}

// tripService encapsulates the trip service logic and dependencies.
type tripService struct {
	logger     *logger.Logger
	uow        ports.UnitOfWork
	trips      ports.TripRepository
	roster     ports.RosterRepository
	passengers ports.PassengerStatusRepository
	profiles   ports.ProfileRepository
	bulkOps    ports.BulkOperationRepository
	events     ports.TripEventRepository
	pub        ports.EventPublisher
	notifier   ports.TripNotifier
	directions ports.DirectionsService
	replay     ports.ReplayGuard
	consumer   queueConsumer
	metrics    *metrics.Collector

	directionsTimeout time.Duration
	now               func() time.Time
	newID             func() string
}

// NewTripService creates a new instance of the TripService with the provided dependencies.
func NewTripService(deps Deps) ports.TripService {
	return &tripService{
		logger:     deps.Logger,
		uow:        deps.UoW,
		trips:      deps.Trips,
		roster:     deps.Roster,
		passengers: deps.Passengers,
		profiles:   deps.Profiles,
		bulkOps:    deps.BulkOps,
		events:     deps.Events,
		pub:        deps.Publisher,
		notifier:   deps.Notifier,
		directions: deps.Directions,
		replay:     deps.Replay,
		consumer:   deps.Consumer,
		metrics:    deps.Metrics,

		directionsTimeout: 4 * time.Second,
		now:               func() time.Time { return time.Now().UTC() },
		newID:             newUUID,
	}
}
