package postgres

import (
	"context"
	"fmt"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/ports"

	"github.com/google/uuid"
)

// BulkOperationRepo persists bulk check-in items.
type BulkOperationRepo struct{}

// NewBulkOperationRepo constructs a new BulkOperationRepo.
func NewBulkOperationRepo() ports.BulkOperationRepository {
	return &BulkOperationRepo{}
}

// Insert writes a new item. Items of one batch are listed back in insertion order.
func (repo *BulkOperationRepo) Insert(ctx context.Context, op *bulk.Operation) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bulk_operations (id, batch_id, trip_id, student_id, actor_id, action, status, error, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		op.ID,
		op.BatchID,
		op.TripID,
		op.StudentID,
		op.ActorID,
		op.Action.String(),
		op.Status.String(),
		op.Error,
		op.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert bulk operation: %w", err)
	}

	return nil
}

// Update writes the status, error and timestamp of an item.
func (repo *BulkOperationRepo) Update(ctx context.Context, op *bulk.Operation) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bulk_operations
		SET status = $2, error = $3, ts = $4
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, op.ID, op.Status.String(), op.Error, op.Timestamp)
	if err != nil {
		return fmt.Errorf("update bulk operation %s: %w", op.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return bulk.ErrOperationFinalized
	}

	return nil
}

// ListBatch returns the items of a batch whose trip belongs to schoolID.
func (repo *BulkOperationRepo) ListBatch(ctx context.Context, schoolID, batchID string) ([]bulk.Operation, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(batchID); err != nil {
		return []bulk.Operation{}, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT b.id, b.batch_id, b.trip_id, b.student_id, b.actor_id, b.action, b.status, b.error, b.ts
		FROM bulk_operations b
		JOIN trips t ON t.id = b.trip_id
		WHERE b.batch_id = $1 AND t.school_id = $2
		ORDER BY b.seq
	`, batchID, schoolID)
	if err != nil {
		return nil, fmt.Errorf("query bulk batch: %w", err)
	}
	defer rows.Close()

	out := []bulk.Operation{}
	for rows.Next() {
		var (
			op             bulk.Operation
			action, status string
		)
		if err := rows.Scan(
			&op.ID, &op.BatchID, &op.TripID, &op.StudentID, &op.ActorID, &action, &status, &op.Error, &op.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan bulk operation: %w", err)
		}
		op.Action = bulk.Action(action)
		op.Status = bulk.Status(status)
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}
