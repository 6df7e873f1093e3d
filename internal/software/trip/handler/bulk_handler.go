package handler

import (
	"context"
	"net/http"
	"time"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/ports"
)

// bulkTimeout covers reading the batch; the service finishes an accepted batch regardless.
const bulkTimeout = 30 * time.Second

// bulkItemRequest is left unvalidated: a bad item fails on its own inside the batch.
type bulkItemRequest struct {
	StudentID string `json:"student_id"`
	Action    string `json:"action"`
}

type submitBulkRequest struct {
	Operations []bulkItemRequest `json:"operations"`
}

// ----- Handler: POST /trips/{trip_id}/bulk -----

func (handler *TripHTTPHandler) handleSubmitBulk(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req submitBulkRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	// unknown actions are reported per item, not for the whole batch
	intents := make([]bulk.Intent, 0, len(req.Operations))
	for _, op := range req.Operations {
		action, err := bulk.ParseAction(op.Action)
		if err != nil {
			action = bulk.Action(op.Action)
		}
		intents = append(intents, bulk.Intent{StudentID: op.StudentID, Action: action})
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, bulkTimeout)
	defer cancel()

	res, err := handler.svc.SubmitBulk(ctxWithTimeout, ports.SubmitBulkInput{Actor: actor, TripID: tripID, Intents: intents})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: GET /batches/{batch_id} -----

func (handler *TripHTTPHandler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.GetBatch(ctxWithTimeout, actor.SchoolID, r.PathValue("batch_id"))
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
