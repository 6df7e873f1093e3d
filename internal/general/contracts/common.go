package contracts

import (
	"time"

	"school-bus/internal/domain/geo"
)

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // Producer service name, e.g. "trip-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FromPoint converts a domain point to its wire shape.
func FromPoint(p geo.Point) GeoPoint {
	return GeoPoint{Lat: p.Latitude, Lng: p.Longitude}
}

// FromPointPtr is FromPoint for optional points.
func FromPointPtr(p *geo.Point) *GeoPoint {
	if p == nil {
		return nil
	}
	g := FromPoint(*p)
	return &g
}

// Point converts the wire shape back to a domain point.
func (g GeoPoint) Point() geo.Point {
	return geo.Point{Latitude: g.Lat, Longitude: g.Lng}
}

// StopBrief is a sequenced stop as shown to the crew.
type StopBrief struct {
	StudentID  string   `json:"student_id"`
	Name       string   `json:"name,omitempty"`
	Location   GeoPoint `json:"location"`
	OrderIndex int      `json:"order_index"`
}
