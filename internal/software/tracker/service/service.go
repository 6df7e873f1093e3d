package service

import (
	"time"

	"school-bus/internal/domain/tracker"
	"school-bus/internal/general/logger"
	"school-bus/internal/general/metrics"
	"school-bus/internal/ports"
)

// Deps lists the collaborators of the tracker service. Publisher and Metrics may be nil.
type Deps struct {
	Logger    *logger.Logger
	UoW       ports.UnitOfWork
	Trips     ports.TripRepository
	History   ports.PositionHistoryRepository
	Publisher ports.EventPublisher
	Source    ports.PositionSource
	Metrics   *metrics.Collector
	Policy    tracker.CadencePolicy
}

// trackerService gates live fixes by cadence and persists the accepted ones.
type trackerService struct {
	logger  *logger.Logger
	uow     ports.UnitOfWork
	trips   ports.TripRepository
	history ports.PositionHistoryRepository
	pub     ports.EventPublisher
	source  ports.PositionSource
	metrics *metrics.Collector
	policy  tracker.CadencePolicy

	now func() time.Time
}

// NewTrackerService creates a new instance of the TrackerService. A zero Policy falls back to tracker.DefaultCadence.
func NewTrackerService(deps Deps) ports.TrackerService {
	policy := deps.Policy
	if policy.Foreground <= 0 || policy.Background <= 0 {
		policy = tracker.DefaultCadence
	}
	return &trackerService{
		logger:  deps.Logger,
		uow:     deps.UoW,
		trips:   deps.Trips,
		history: deps.History,
		pub:     deps.Publisher,
		source:  deps.Source,
		metrics: deps.Metrics,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
	}
}
