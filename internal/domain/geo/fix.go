package geo

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Fix is a single sample from a driver's live position stream.
type Fix struct {
	SchoolID       string
	TripID         string
	DriverID       string
	Point          Point
	AccuracyMeters *float64
	SpeedKMH       *float64
	HeadingDegrees *float64
	RecordedAt     time.Time

	// Foreground is false when the driver app reports it is backgrounded.
	Foreground bool
	// BackgroundTracking is the driver's preference for writes while backgrounded.
	BackgroundTracking bool
}

var (
	ErrMissingTripID      = errors.New("trip ID is missing")
	ErrMissingSchoolID    = errors.New("school ID is missing")
	ErrNegativeAccuracy   = errors.New("accuracy_meters cannot be negative")
	ErrNegativeSpeed      = errors.New("speed_kmh cannot be negative")
	ErrInvalidHeading     = errors.New("heading_degrees must be between 0 and 360")
	ErrRecordedAtZeroTime = errors.New("recorded_at must be a valid timestamp")
)

// NewFix constructs a Fix. Only the trip, school and coordinate are strictly required.
func NewFix(
	schoolID string,
	tripID string,
	driverID string,
	latitude float64,
	longitude float64,
	accuracyMeters *float64,
	speedKMH *float64,
	headingDegrees *float64,
	recordedAt time.Time,
) (*Fix, error) {
	fix := &Fix{
		SchoolID:       strings.TrimSpace(schoolID),
		TripID:         strings.TrimSpace(tripID),
		DriverID:       strings.TrimSpace(driverID),
		Point:          Point{Latitude: latitude, Longitude: longitude},
		AccuracyMeters: accuracyMeters,
		SpeedKMH:       speedKMH,
		HeadingDegrees: headingDegrees,
		RecordedAt:     recordedAt,
		Foreground:     true,
	}

	if fix.RecordedAt.IsZero() {
		fix.RecordedAt = time.Now().UTC()
	}

	if err := fix.Validate(); err != nil {
		return nil, err
	}
	return fix, nil
}

// Validate checks invariants of the Fix.
func (fix Fix) Validate() error {
	if fix.TripID == "" {
		return ErrMissingTripID
	}
	if fix.SchoolID == "" {
		return ErrMissingSchoolID
	}
	if err := fix.Point.Validate(); err != nil {
		return err
	}

	// optional metrics
	if fix.AccuracyMeters != nil {
		if *fix.AccuracyMeters < 0 || math.IsNaN(*fix.AccuracyMeters) {
			return ErrNegativeAccuracy
		}
	}
	if fix.SpeedKMH != nil {
		if *fix.SpeedKMH < 0 || math.IsNaN(*fix.SpeedKMH) {
			return ErrNegativeSpeed
		}
	}
	if fix.HeadingDegrees != nil {
		// some SDKs report 360.0 instead of 0.0
		if *fix.HeadingDegrees < 0 || *fix.HeadingDegrees > 360 || math.IsNaN(*fix.HeadingDegrees) {
			return ErrInvalidHeading
		}
	}

	if fix.RecordedAt.IsZero() {
		return ErrRecordedAtZeroTime
	}
	return nil
}
