package contracts

import "time"

// TripStatusMessage is published by Trip Service on every lifecycle change.
// Routing key: "trip.status.{status}" on ExchangeTripTopic.
type TripStatusMessage struct {
	TripID    string    `json:"trip_id"`
	SchoolID  string    `json:"school_id"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"` // scheduled|active|ended
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// PassengerStatusMessage is published by Trip Service after a student's status is replaced.
// Routing key: "passenger.status.{status}" on ExchangeTripTopic.
type PassengerStatusMessage struct {
	TripID         string    `json:"trip_id"`
	SchoolID       string    `json:"school_id"`
	StudentID      string    `json:"student_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	Method         string    `json:"method"`
	ActorID        string    `json:"actor_id"`
	Version        int64     `json:"version"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}

// SupervisionMessage is published when a driver gains supervisory controls on an active trip.
// Routing key: "trip.supervision.{trip_id}" on ExchangeTripTopic.
type SupervisionMessage struct {
	TripID    string    `json:"trip_id"`
	SchoolID  string    `json:"school_id"`
	ActorID   string    `json:"actor_id"`
	Source    string    `json:"source"` // profile|trip
	Enabled   bool      `json:"enabled"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// BulkBatchMessage is published after a bulk submission has been processed.
// Routing key: "bulk.batch.{trip_id}" on ExchangeTripTopic.
type BulkBatchMessage struct {
	BatchID    string    `json:"batch_id"`
	TripID     string    `json:"trip_id"`
	SchoolID   string    `json:"school_id"`
	ActorID    string    `json:"actor_id"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Duplicates int       `json:"duplicates"`
	Timestamp  time.Time `json:"timestamp"`
	Envelope
}

// PositionUpdateMessage is published by Tracker Service for every accepted fix.
// Routing key: "trip.position.{trip_id}" on ExchangeTripTopic.
type PositionUpdateMessage struct {
	TripID         string    `json:"trip_id"`
	SchoolID       string    `json:"school_id"`
	DriverID       string    `json:"driver_id,omitempty"`
	Location       GeoPoint  `json:"location"`
	SpeedKMH       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}

// PositionFix is the payload the driver app publishes on NATS.
// Subject: "{prefix}.{school_id}.{trip_id}".
type PositionFix struct {
	TripID             string    `json:"trip_id"`
	SchoolID           string    `json:"school_id"`
	DriverID           string    `json:"driver_id"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	AccuracyMeters     *float64  `json:"accuracy_meters,omitempty"`
	SpeedKMH           *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees     *float64  `json:"heading_degrees,omitempty"`
	RecordedAt         time.Time `json:"recorded_at"`
	Foreground         *bool     `json:"foreground,omitempty"` // absent means foreground
	BackgroundTracking bool      `json:"background_tracking"`
}
