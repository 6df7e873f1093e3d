package user

import (
	"errors"
	"strings"
	"time"
)

// Profile is the per-user settings record consulted for trip authorization.
type Profile struct {
	ID          string
	SchoolID    string
	DisplayName string
	Role        Role

	// SupervisorModeEnabled is the standing flag that lets a driver board and drop
	// students on their own trips without a separate supervisor.
	SupervisorModeEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	ErrProfileIDRequired = errors.New("profile id is required")
	ErrSchoolIDRequired  = errors.New("school id is required")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrBadTimestamps     = errors.New("updated_at cannot be before created_at")
)

// Validate checks invariants of the Profile.
func (profile *Profile) Validate() error {
	if strings.TrimSpace(profile.ID) == "" {
		return ErrProfileIDRequired
	}
	if strings.TrimSpace(profile.SchoolID) == "" {
		return ErrSchoolIDRequired
	}
	if !profile.Role.Valid() {
		return ErrInvalidRole
	}
	if !profile.CreatedAt.IsZero() && !profile.UpdatedAt.IsZero() && profile.UpdatedAt.Before(profile.CreatedAt) {
		return ErrBadTimestamps
	}
	return nil
}

// SetSupervisorMode toggles the standing supervisor-mode flag. Updates UpdatedAt timestamp.
func (profile *Profile) SetSupervisorMode(enabled bool) {
	profile.SupervisorModeEnabled = enabled
	profile.touch()
}

// touch sets UpdatedAt to now (UTC).
func (profile *Profile) touch() {
	profile.UpdatedAt = time.Now().UTC()
}
