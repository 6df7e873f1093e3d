package contracts

import "time"

// WebSocket event types
const (
	WSTypeTripStatus         = "trip_status_update"
	WSTypePassengerStatus    = "passenger_status_update"
	WSTypeNextStop           = "next_stop_update"
	WSTypeScanFeedback       = "scan_feedback"
	WSTypeSupervisionEnabled = "supervision_enabled"
	WSTypeDriverLocation     = "driver_location_update"
	WSTypeBulkCompleted      = "bulk_completed"
)

// WSTripStatus mirrors trip lifecycle changes to everyone in the trip room.
type WSTripStatus struct {
	Type      string    `json:"type"` // "trip_status_update"
	TripID    string    `json:"trip_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// WSPassengerStatus mirrors a student's new status.
type WSPassengerStatus struct {
	Type           string    `json:"type"` // "passenger_status_update"
	TripID         string    `json:"trip_id"`
	StudentID      string    `json:"student_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	Method         string    `json:"method"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}

// WSNextStop carries the recomputed current and next stop after a position change.
type WSNextStop struct {
	Type      string     `json:"type"` // "next_stop_update"
	TripID    string     `json:"trip_id"`
	Current   *StopBrief `json:"current,omitempty"`
	Next      *StopBrief `json:"next,omitempty"`
	Remaining int        `json:"remaining"`
	Source    string     `json:"source"` // directions|position|none
	Timestamp time.Time  `json:"timestamp"`
	Envelope
}

// WSScanFeedback is the success/error cue for a scan.
type WSScanFeedback struct {
	Type        string `json:"type"` // "scan_feedback"
	TripID      string `json:"trip_id"`
	Kind        string `json:"kind"`
	Feedback    string `json:"feedback"` // success|error|none
	StudentID   string `json:"student_id,omitempty"`
	StudentName string `json:"student_name,omitempty"`
	Envelope
}

// WSSupervisionEnabled tells the driver app to surface boarding controls.
type WSSupervisionEnabled struct {
	Type    string `json:"type"` // "supervision_enabled"
	TripID  string `json:"trip_id"`
	ActorID string `json:"actor_id"`
	Source  string `json:"source"` // profile|trip
	Envelope
}

// WSDriverLocation mirrors the bus position to watchers.
type WSDriverLocation struct {
	Type      string    `json:"type"` // "driver_location_update"
	TripID    string    `json:"trip_id"`
	Location  GeoPoint  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// WSBulkCompleted summarises a processed bulk batch.
type WSBulkCompleted struct {
	Type       string `json:"type"` // "bulk_completed"
	TripID     string `json:"trip_id"`
	BatchID    string `json:"batch_id"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	Duplicates int    `json:"duplicates"`
	Envelope
}
