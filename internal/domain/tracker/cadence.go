package tracker

import (
	"time"

	"school-bus/internal/domain/geo"
)

// Decision is what the cadence gate did with a fix.
type Decision string

const (
	Accepted   Decision = "accepted"
	Throttled  Decision = "throttled"  // too soon after the last write
	Suppressed Decision = "suppressed" // backgrounded with background tracking off
)

// CadencePolicy limits how often live fixes reach storage.
type CadencePolicy struct {
	Foreground time.Duration
	Background time.Duration
}

// DefaultCadence writes every 30s in the foreground and every 90s in the background.
var DefaultCadence = CadencePolicy{Foreground: 30 * time.Second, Background: 90 * time.Second}

// Decide gates fix against the time of the last stored position (nil when none).
func (policy CadencePolicy) Decide(fix geo.Fix, lastWrite *time.Time) Decision {
	interval := policy.Foreground
	if !fix.Foreground {
		if !fix.BackgroundTracking {
			return Suppressed
		}
		interval = policy.Background
	}

	if lastWrite == nil || fix.RecordedAt.Sub(*lastWrite) >= interval {
		return Accepted
	}
	return Throttled
}
