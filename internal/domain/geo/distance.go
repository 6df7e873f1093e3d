package geo

import "math"

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between a and b in kilometers.
func HaversineKM(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	// rounding can push h a hair past the valid domain for identical points
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	return earthRadiusKM * c
}
