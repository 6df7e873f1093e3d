package route

import "school-bus/internal/domain/geo"

// Source tells which input picked the current stop.
type Source string

const (
	SourceDirections Source = "directions"
	SourcePosition   Source = "position"
	SourceNone       Source = "none"
)

// Resolution is the current and next stop of a sequence. Nil means unknown.
type Resolution struct {
	Current *Stop
	Next    *Stop
	Source  Source
}

// Resolve picks the stop the bus is heading to and the one after it.
//
// A directions result wins: its first leg's end point is matched to the nearest stop.
// Otherwise the stop nearest to currentPosition is used. Without either, nothing is known.
// stops must be in OrderIndex order, as returned by Sequence.
func Resolve(stops []Stop, currentPosition *geo.Point, directions *Directions) Resolution {
	if len(stops) == 0 {
		return Resolution{Source: SourceNone}
	}

	var target geo.Point
	source := SourceNone
	switch {
	case !directions.Empty() && directions.Legs[0].End.Usable():
		target = directions.Legs[0].End
		source = SourceDirections
	case geo.UsablePtr(currentPosition):
		target = *currentPosition
		source = SourcePosition
	default:
		return Resolution{Source: SourceNone}
	}

	idx := nearest(stops, target)
	res := Resolution{Source: source}
	current := stops[idx]
	res.Current = &current
	if idx+1 < len(stops) {
		next := stops[idx+1]
		res.Next = &next
	}
	return res
}

// nearest returns the index of the stop closest to target, first one on ties.
func nearest(stops []Stop, target geo.Point) int {
	best := 0
	bestKM := geo.HaversineKM(target, *stops[0].Student.Location)
	for i := 1; i < len(stops); i++ {
		if d := geo.HaversineKM(target, *stops[i].Student.Location); d < bestKM {
			best = i
			bestKM = d
		}
	}
	return best
}
