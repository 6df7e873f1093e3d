package postgres

import "school-bus/internal/domain/geo"

// pointArgs splits an optional point into nullable lat/lng arguments.
func pointArgs(p *geo.Point) (lat, lng *float64) {
	if p == nil {
		return nil, nil
	}
	la, ln := p.Latitude, p.Longitude
	return &la, &ln
}

// scannedPoint joins nullable lat/lng columns back into an optional point.
func scannedPoint(lat, lng *float64) *geo.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &geo.Point{Latitude: *lat, Longitude: *lng}
}
