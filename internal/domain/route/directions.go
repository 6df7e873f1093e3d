package route

import (
	"errors"
	"time"

	"school-bus/internal/domain/geo"
)

// MaxWaypoints is the most intermediate stops a directions request accepts in one call.
const MaxWaypoints = 23

var ErrDirectionsUnavailable = errors.New("directions service unavailable")

// DirectionsRequest asks for a road route through ordered waypoints.
type DirectionsRequest struct {
	Origin      geo.Point
	Destination geo.Point
	Waypoints   []geo.Point
}

// Leg is one segment of a road route between consecutive points.
type Leg struct {
	Start      geo.Point
	End        geo.Point
	DistanceKM float64
	Duration   time.Duration
}

// Directions is a turn-by-turn result reduced to its legs.
type Directions struct {
	Legs []Leg
}

// Empty reports whether d carries no usable leg.
func (d *Directions) Empty() bool {
	return d == nil || len(d.Legs) == 0
}

// RequestFor builds the directions request for an ordered stop sequence.
func RequestFor(origin, destination geo.Point, stops []Stop) DirectionsRequest {
	n := min(len(stops), MaxWaypoints)
	waypoints := make([]geo.Point, 0, n)
	for _, stop := range stops[:n] {
		waypoints = append(waypoints, *stop.Student.Location)
	}
	return DirectionsRequest{Origin: origin, Destination: destination, Waypoints: waypoints}
}
