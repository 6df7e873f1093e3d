package postgres

import (
	"context"
	"fmt"

	"school-bus/internal/domain/roster"
	"school-bus/internal/ports"
)

// RosterRepo reads student records.
type RosterRepo struct{}

// NewRosterRepo constructs a new RosterRepo.
func NewRosterRepo() ports.RosterRepository {
	return &RosterRepo{}
}

// ListByIDs returns the students of a school in the order of ids. Unknown ids are skipped.
func (repo *RosterRepo) ListByIDs(ctx context.Context, schoolID string, ids []string) ([]roster.Student, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []roster.Student{}, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT id, school_id, name, latitude, longitude, guardian_name, phone, address
		FROM students
		WHERE school_id = $1 AND id = ANY($2::text[])
		ORDER BY array_position($2::text[], id)
	`, schoolID, ids)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	out := make([]roster.Student, 0, len(ids))
	for rows.Next() {
		var (
			s        roster.Student
			lat, lng *float64
		)
		if err := rows.Scan(
			&s.ID, &s.SchoolID, &s.Name, &lat, &lng,
			&s.Contact.GuardianName, &s.Contact.Phone, &s.Contact.Address,
		); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		s.Location = scannedPoint(lat, lng)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}
