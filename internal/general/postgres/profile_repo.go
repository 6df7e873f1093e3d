package postgres

import (
	"context"
	"errors"
	"fmt"

	"school-bus/internal/domain/user"
	"school-bus/internal/ports"

	"github.com/jackc/pgx/v5"
)

// ProfileRepo persists crew profiles using pgx and plain SQL.
type ProfileRepo struct{}

// NewProfileRepo constructs a new ProfileRepo.
func NewProfileRepo() ports.ProfileRepository {
	return &ProfileRepo{}
}

// GetByID returns one profile of a school.
func (repo *ProfileRepo) GetByID(ctx context.Context, schoolID, id string) (*user.Profile, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out      user.Profile
		roleText string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, school_id, display_name, role, supervisor_mode_enabled, created_at, updated_at
		FROM profiles
		WHERE id = $1 AND school_id = $2
	`, id, schoolID).Scan(
		&out.ID, &out.SchoolID, &out.DisplayName, &roleText, &out.SupervisorModeEnabled,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	out.Role = user.Role(roleText)

	return &out, nil
}

// SetSupervisorMode writes the standing supervisor-mode flag.
func (repo *ProfileRepo) SetSupervisorMode(ctx context.Context, p *user.Profile) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		UPDATE profiles
		SET supervisor_mode_enabled = $3, updated_at = now()
		WHERE id = $1 AND school_id = $2
		RETURNING updated_at
	`, p.ID, p.SchoolID, p.SupervisorModeEnabled).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("set supervisor mode of %s: %w", p.ID, err)
	}

	return nil
}
