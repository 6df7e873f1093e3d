package route

import (
	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/roster"
	"school-bus/internal/domain/trip"
)

// Stop is one entry of a computed visiting order. It is derived and never persisted.
type Stop struct {
	Student                roster.Student
	OrderIndex             int
	DistanceFromOriginKM   float64
	DistanceFromPreviousKM float64
}

// Endpoints derives where a sequence starts and ends for a trip.
//
// Pickup runs from the driver (or the school when the driver position is unknown) to the school.
// Dropoff runs from the school to the driver's last known position.
func Endpoints(t *trip.Trip) (origin, destination geo.Point) {
	driver := t.School
	switch {
	case geo.UsablePtr(t.LastPosition):
		driver = *t.LastPosition
	case geo.UsablePtr(t.StartPosition):
		driver = *t.StartPosition
	}

	if t.Mode == trip.ModeDropoff {
		return t.School, driver
	}
	return driver, t.School
}

// Eligible reports whether a student with status belongs in a mode's sequence.
func Eligible(mode trip.Mode, status passenger.Status) bool {
	switch mode {
	case trip.ModePickup:
		return status == passenger.StatusPending || status == passenger.StatusBoarded
	case trip.ModeDropoff:
		return status == passenger.StatusPending
	default:
		return false
	}
}

// Sequence orders eligible students with a nearest-neighbour walk from origin.
//
// Students without a usable coordinate or with a status the mode does not visit are left
// out. Ties go to the student listed first. At most MaxWaypoints stops are returned; the
// walk implicitly finishes at destination, which does not influence the order.
func Sequence(students []roster.Student, statuses map[string]passenger.Record, origin, destination geo.Point, mode trip.Mode) []Stop {
	candidates := make([]roster.Student, 0, len(students))
	for _, s := range students {
		if !s.HasLocation() {
			continue
		}
		if !Eligible(mode, passenger.CurrentStatus(statuses, s.ID)) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return []Stop{}
	}

	visited := make([]bool, len(candidates))
	stops := make([]Stop, 0, min(len(candidates), MaxWaypoints))
	current := origin

	for len(stops) < len(candidates) && len(stops) < MaxWaypoints {
		best := -1
		bestKM := 0.0
		for i, s := range candidates {
			if visited[i] {
				continue
			}
			d := geo.HaversineKM(current, *s.Location)
			// strict comparison keeps the first-seen student on ties
			if best == -1 || d < bestKM {
				best = i
				bestKM = d
			}
		}

		visited[best] = true
		next := *candidates[best].Location
		stops = append(stops, Stop{
			Student:                candidates[best],
			OrderIndex:             len(stops),
			DistanceFromOriginKM:   geo.HaversineKM(origin, next),
			DistanceFromPreviousKM: bestKM,
		})
		current = next
	}

	return stops
}
