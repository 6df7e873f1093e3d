package service

import (
	"context"
	"fmt"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/trip"
	"school-bus/internal/general/contracts"
	"school-bus/internal/ports"
)

// SubmitBulk applies a list of boarding/dropping intents one by one.
//
// Only whole-batch preconditions fail the call: trip.ErrNotAuthorized and bulk.ErrEmptyBatch.
// Item errors end up in the item. Once accepted, the batch runs to the end even if the request
// is cancelled, and completed items are never rolled back.
func (service *tripService) SubmitBulk(ctx context.Context, in ports.SubmitBulkInput) (ports.BatchResult, error) {
	ctx = service.logger.WithTripID(ctx, in.TripID)
	correlationID := generateCorrelationID()

	// 1) whole-batch authorization
	var t *trip.Trip
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, in.Actor.SchoolID, in.TripID)
		if err != nil {
			return err
		}
		profile, err := service.loadProfile(ctx, t.SchoolID, in.Actor.ID)
		if err != nil {
			return err
		}
		if !trip.CanSupervise(t, in.Actor.ID, profile) {
			return trip.ErrNotAuthorized
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "bulk_rejected", "Bulk submission rejected", err, map[string]any{
			"actor_id":   in.Actor.ID,
			"request_id": correlationID,
		})
		return ports.BatchResult{}, err
	}
	if len(in.Intents) == 0 {
		return ports.BatchResult{}, bulk.ErrEmptyBatch
	}

	// 2) first occurrence per student wins
	intents, duplicates := bulk.Dedupe(in.Intents)
	for range duplicates {
		service.metrics.BulkItem("duplicate")
	}

	// 3) no cancellation from here on
	runCtx := context.WithoutCancel(ctx)
	result := ports.BatchResult{
		BatchID:    service.newID(),
		TripID:     t.ID,
		Duplicates: duplicates,
		Items:      make([]ports.BatchItem, 0, len(intents)),
	}
	for _, intent := range intents {
		op := service.runBulkItem(runCtx, in.Actor, t.ID, result.BatchID, intent)
		if op.Status == bulk.StatusCompleted {
			result.Processed++
		} else {
			result.Failed++
		}
		service.metrics.BulkItem(op.Status.String())
		result.Items = append(result.Items, toBatchItem(op))
	}

	// 4) audit + notify
	if err := service.uow.WithinTx(runCtx, func(ctx context.Context) error {
		return service.appendEvent(ctx, t.ID, in.Actor.ID, trip.EventBulkBatchSubmitted, map[string]any{
			"batch_id":   result.BatchID,
			"processed":  result.Processed,
			"failed":     result.Failed,
			"duplicates": result.Duplicates,
		})
	}); err != nil {
		service.logger.Error(runCtx, "bulk_audit_failed", "Failed to record bulk batch event", err, map[string]any{
			"batch_id": result.BatchID,
		})
	}

	env := service.envelope(correlationID)
	service.publish(runCtx, contracts.RouteBulkBatchPrefix+t.ID, contracts.BulkBatchMessage{
		BatchID:    result.BatchID,
		TripID:     t.ID,
		SchoolID:   t.SchoolID,
		ActorID:    in.Actor.ID,
		Processed:  result.Processed,
		Failed:     result.Failed,
		Duplicates: result.Duplicates,
		Timestamp:  service.now(),
		Envelope:   env,
	})
	service.broadcast(t.ID, contracts.WSBulkCompleted{
		Type:       contracts.WSTypeBulkCompleted,
		TripID:     t.ID,
		BatchID:    result.BatchID,
		Processed:  result.Processed,
		Failed:     result.Failed,
		Duplicates: result.Duplicates,
		Envelope:   env,
	})
	if result.Processed > 0 {
		service.pushNextStop(runCtx, t.SchoolID, t.ID, nil)
	}

	service.logger.Info(runCtx, "bulk_processed", fmt.Sprintf("Bulk batch %s processed", result.BatchID), map[string]any{
		"processed":  result.Processed,
		"failed":     result.Failed,
		"duplicates": result.Duplicates,
		"request_id": correlationID,
	})
	return result, nil
}

// runBulkItem drives one item pending -> processing -> completed|failed, persisting every step.
// The returned operation is always terminal.
func (service *tripService) runBulkItem(ctx context.Context, actor ports.Actor, tripID, batchID string, intent bulk.Intent) *bulk.Operation {
	op, err := bulk.NewOperation(service.newID(), batchID, tripID, actor.ID, intent)
	if err != nil {
		// not persistable; reported back as failed
		op = &bulk.Operation{
			BatchID:   batchID,
			TripID:    tripID,
			StudentID: intent.StudentID,
			ActorID:   actor.ID,
			Action:    intent.Action,
			Status:    bulk.StatusPending,
			Timestamp: service.now(),
		}
		_ = op.Fail(err)
		return op
	}

	// the first persistence failure is kept; later writes for the row would repeat it
	var persistErr error
	persist := func(write func(ctx context.Context, op *bulk.Operation) error) {
		if err := service.uow.WithinTx(ctx, func(ctx context.Context) error { return write(ctx, op) }); err != nil {
			service.logger.Error(ctx, "bulk_item_persist_failed", "Failed to persist bulk item", err, map[string]any{
				"batch_id": batchID, "operation_id": op.ID, "status": op.Status.String(),
			})
			if persistErr == nil {
				persistErr = err
			}
		}
	}

	persist(service.bulkOps.Insert)
	_ = op.Begin()
	persist(service.bulkOps.Update)

	_, err = service.setPassengerStatus(ctx, ports.SetPassengerStatusInput{
		Actor:     actor,
		TripID:    tripID,
		StudentID: op.StudentID,
		Status:    op.Action.TargetStatus(),
		Method:    passenger.MethodManual,
	})
	if err != nil {
		_ = op.Fail(err)
	} else {
		_ = op.Complete()
	}
	persist(service.bulkOps.Update)
	if persistErr != nil {
		service.metrics.BulkItem("unrecorded")
		op.NoteError(fmt.Errorf("operation record not saved: %w", persistErr))
	}
	return op
}

// GetBatch lists the items of a batch for audit or export.
func (service *tripService) GetBatch(ctx context.Context, schoolID, batchID string) (ports.BatchResult, error) {
	var ops []bulk.Operation
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ops, err = service.bulkOps.ListBatch(ctx, schoolID, batchID)
		return err
	})
	if err != nil {
		return ports.BatchResult{}, err
	}
	if len(ops) == 0 {
		return ports.BatchResult{}, bulk.ErrBatchNotFound
	}

	res := ports.BatchResult{BatchID: batchID, TripID: ops[0].TripID, Items: make([]ports.BatchItem, 0, len(ops))}
	for i := range ops {
		switch ops[i].Status {
		case bulk.StatusCompleted:
			res.Processed++
		case bulk.StatusFailed:
			res.Failed++
		}
		res.Items = append(res.Items, toBatchItem(&ops[i]))
	}
	return res, nil
}

func toBatchItem(op *bulk.Operation) ports.BatchItem {
	return ports.BatchItem{
		OperationID: op.ID,
		StudentID:   op.StudentID,
		Action:      op.Action.String(),
		Status:      op.Status.String(),
		Error:       op.Error,
		Timestamp:   op.Timestamp,
	}
}
