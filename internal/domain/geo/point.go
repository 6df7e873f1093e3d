package geo

import (
	"errors"
	"math"
)

// Point is a WGS84 latitude/longitude pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrZeroCoordinate   = errors.New("coordinate cannot be zero")
)

// NewPoint constructs a Point and validates it.
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if err := point.Validate(); err != nil {
		return Point{}, err
	}
	return point, nil
}

// Validate checks ranges, NaN and the zero sentinel that clients send for "no fix".
func (point Point) Validate() error {
	if math.IsNaN(point.Latitude) || point.Latitude < -90 || point.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(point.Longitude) || point.Longitude < -180 || point.Longitude > 180 {
		return ErrInvalidLongitude
	}
	if point.Latitude == 0 || point.Longitude == 0 {
		return ErrZeroCoordinate
	}
	return nil
}

// Usable reports whether the point can take part in distance calculations.
func (point Point) Usable() bool {
	return point.Validate() == nil
}

// UsablePtr is Usable for optional points.
func UsablePtr(point *Point) bool {
	return point != nil && point.Usable()
}
