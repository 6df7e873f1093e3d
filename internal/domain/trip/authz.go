package trip

import (
	"strings"

	"school-bus/internal/domain/user"
)

// CanSupervise reports whether actorID may board and drop students on trip.
//
// The assigned supervisor always can. The trip's own driver can when supervisor mode is on,
// either as a standing profile flag or through the trip-level allowDriverAsSupervisor flag.
// profile may be nil when the actor has no profile row.
func CanSupervise(trip *Trip, actorID string, profile *user.Profile) bool {
	if trip == nil {
		return false
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return false
	}

	if trip.SupervisorID != nil && *trip.SupervisorID == actorID {
		return true
	}
	if actorID != trip.DriverID {
		return false
	}

	profileFlag := profile != nil && profile.ID == actorID && profile.SupervisorModeEnabled
	return profileFlag || trip.AllowDriverAsSupervisor
}

// SupervisionGained reports the false->true flip that should surface supervisory controls.
// It only fires while the trip is active.
func SupervisionGained(before, after bool, status Status) bool {
	return !before && after && status == StatusActive
}

// CanOperate reports whether actorID may start or end trip: its driver or assigned supervisor.
func CanOperate(trip *Trip, actorID string) bool {
	if trip == nil {
		return false
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return false
	}
	return actorID == trip.DriverID || (trip.SupervisorID != nil && *trip.SupervisorID == actorID)
}
