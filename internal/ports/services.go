package ports

import (
	"context"
	"time"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
)

// Actor is the authenticated caller, taken from the JWT claims.
type Actor struct {
	ID       string
	SchoolID string
	Role     user.Role
}

// ----- DTOs for Trip Service -----

// CreateTripInput is the validated input required to create a trip.
type CreateTripInput struct {
	Actor                   Actor
	Mode                    trip.Mode
	DriverID                string
	SupervisorID            string
	AllowDriverAsSupervisor bool
	School                  geo.Point
	Roster                  []string
}

// TripResult is the API view of a trip.
type TripResult struct {
	TripID                  string     `json:"trip_id"`
	Mode                    string     `json:"mode"`
	Status                  string     `json:"status"`
	DriverID                string     `json:"driver_id"`
	SupervisorID            *string    `json:"supervisor_id,omitempty"`
	AllowDriverAsSupervisor bool       `json:"allow_driver_as_supervisor"`
	RosterSize              int        `json:"roster_size"`
	School                  geo.Point  `json:"school_location"`
	StartPosition           *geo.Point `json:"start_position,omitempty"`
	LastPosition            *geo.Point `json:"last_position,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	StartedAt               *time.Time `json:"started_at,omitempty"`
	EndedAt                 *time.Time `json:"ended_at,omitempty"`
}

// StartTripInput is the validated input for POST /trips/{trip_id}/start.
type StartTripInput struct {
	Actor          Actor
	TripID         string
	DriverPosition *geo.Point // nil when the app has no fix yet
}

// EndTripInput is the validated input for POST /trips/{trip_id}/end.
type EndTripInput struct {
	Actor  Actor
	TripID string
}

// SetPassengerStatusInput is the validated input for a single student's status write.
type SetPassengerStatusInput struct {
	Actor     Actor
	TripID    string
	StudentID string
	Status    passenger.Status
	Method    passenger.Method
	Location  *geo.Point
}

// PassengerStatusResult matches the API response for a status write.
type PassengerStatusResult struct {
	TripID         string    `json:"trip_id"`
	StudentID      string    `json:"student_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	Method         string    `json:"method"`
	RecordedAt     time.Time `json:"recorded_at"`
	Version        int64     `json:"version"`
}

// ScanInput is one raw read from the badge scanner.
type ScanInput struct {
	Actor    Actor
	TripID   string
	Raw      string
	Location *geo.Point
}

// ScanKind is what happened to a scan.
type ScanKind string

const (
	ScanApplied     ScanKind = "applied"
	ScanSuppressed  ScanKind = "suppressed"
	ScanUnknownCode ScanKind = "unknown_code"
	ScanFailed      ScanKind = "failed"
)

// Feedback is the cue the scanner UI plays.
type Feedback string

const (
	FeedbackSuccess Feedback = "success"
	FeedbackError   Feedback = "error"
	FeedbackNone    Feedback = "none"
)

// ScanOutcome is the result of one ingested scan.
type ScanOutcome struct {
	Kind        ScanKind `json:"kind"`
	Feedback    Feedback `json:"feedback"`
	StudentID   string   `json:"student_id,omitempty"`
	StudentName string   `json:"student_name,omitempty"`
	Status      string   `json:"status,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// SubmitBulkInput is the validated input for POST /trips/{trip_id}/bulk.
type SubmitBulkInput struct {
	Actor   Actor
	TripID  string
	Intents []bulk.Intent
}

// BatchItem is the API view of one bulk operation.
type BatchItem struct {
	OperationID string    `json:"operation_id"`
	StudentID   string    `json:"student_id"`
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// BatchResult summarises a processed bulk submission.
type BatchResult struct {
	BatchID    string      `json:"batch_id"`
	TripID     string      `json:"trip_id"`
	Processed  int         `json:"processed"`
	Failed     int         `json:"failed"`
	Duplicates int         `json:"duplicates"`
	Items      []BatchItem `json:"items"`
}

// PlanRouteInput asks for the current visiting order of a trip.
type PlanRouteInput struct {
	SchoolID        string
	TripID          string
	CurrentPosition *geo.Point // overrides the stored last position when set
}

// RouteStop is the API view of a sequenced stop.
type RouteStop struct {
	StudentID              string    `json:"student_id"`
	Name                   string    `json:"name"`
	Location               geo.Point `json:"location"`
	OrderIndex             int       `json:"order_index"`
	DistanceFromOriginKM   float64   `json:"distance_from_origin_km"`
	DistanceFromPreviousKM float64   `json:"distance_from_previous_km"`
}

// RoutePlan is the sequenced route with the resolved current and next stop.
type RoutePlan struct {
	TripID          string      `json:"trip_id"`
	Mode            string      `json:"mode"`
	Origin          geo.Point   `json:"origin"`
	Destination     geo.Point   `json:"destination"`
	Stops           []RouteStop `json:"stops"`
	CurrentStop     *RouteStop  `json:"current_stop,omitempty"`
	NextStop        *RouteStop  `json:"next_stop,omitempty"`
	Source          string      `json:"source"`
	DirectionsUsed  bool        `json:"directions_used"`
	RoadDistanceKM  float64     `json:"road_distance_km,omitempty"`
	RoadDurationSec int         `json:"road_duration_seconds,omitempty"`
}

// TripSummary gives the crew and admins counts per passenger status.
type TripSummary struct {
	TripID     string         `json:"trip_id"`
	Mode       string         `json:"mode"`
	Status     string         `json:"status"`
	RosterSize int            `json:"roster_size"`
	Counts     map[string]int `json:"counts"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
}

// SetDriverSupervisionInput toggles the trip-level driver supervision flag.
type SetDriverSupervisionInput struct {
	Actor  Actor
	TripID string
	Allow  bool
}

// SetSupervisorModeInput toggles the caller's standing supervisor-mode flag.
type SetSupervisorModeInput struct {
	Actor   Actor
	Enabled bool
}

// SupervisionResult reports the recomputed authorization after a flag change.
type SupervisionResult struct {
	TripID       string `json:"trip_id,omitempty"`
	ProfileID    string `json:"profile_id,omitempty"`
	Enabled      bool   `json:"enabled"`
	CanSupervise bool   `json:"can_supervise"`
	Gained       bool   `json:"gained"`
}

// ----- Trip Service Interface -----

// TripService exposes the boundary for the trip service.
type TripService interface {
	CreateTrip(ctx context.Context, in CreateTripInput) (TripResult, error)
	GetTrip(ctx context.Context, schoolID, tripID string) (TripResult, error)
	ListActiveTrips(ctx context.Context, schoolID string) ([]TripResult, error)
	StartTrip(ctx context.Context, in StartTripInput) (TripResult, error)
	EndTrip(ctx context.Context, in EndTripInput) (TripResult, error)
	SetPassengerStatus(ctx context.Context, in SetPassengerStatusInput) (PassengerStatusResult, error)
	IngestScan(ctx context.Context, in ScanInput) (ScanOutcome, error)
	SubmitBulk(ctx context.Context, in SubmitBulkInput) (BatchResult, error)
	GetBatch(ctx context.Context, schoolID, batchID string) (BatchResult, error)
	PlanRoute(ctx context.Context, in PlanRouteInput) (RoutePlan, error)
	TripSummary(ctx context.Context, schoolID, tripID string) (TripSummary, error)
	SetDriverSupervision(ctx context.Context, in SetDriverSupervisionInput) (SupervisionResult, error)
	SetSupervisorMode(ctx context.Context, in SetSupervisorModeInput) (SupervisionResult, error)
	RunBackgroundConsumers(ctx context.Context)
}

// ---------------------------------------------------------------------------------------------------------------

// ----- Tracker Service Interface -----

// TrackerService gates live fixes by cadence and persists the ones it accepts.
type TrackerService interface {
	// Ingest reports whether fix was written.
	Ingest(ctx context.Context, fix geo.Fix) (bool, error)
	Run(ctx context.Context) error
}
