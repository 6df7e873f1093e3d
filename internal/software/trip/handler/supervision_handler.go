package handler

import (
	"context"
	"net/http"

	"school-bus/internal/ports"
)

type supervisionRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ----- Handler: PUT /trips/{trip_id}/supervision -----

func (handler *TripHTTPHandler) handleSetDriverSupervision(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req supervisionRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.SetDriverSupervision(ctxWithTimeout, ports.SetDriverSupervisionInput{
		Actor:  actor,
		TripID: tripID,
		Allow:  *req.Enabled,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: PUT /profiles/me/supervisor-mode -----

func (handler *TripHTTPHandler) handleSetSupervisorMode(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req supervisionRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.SetSupervisorMode(ctxWithTimeout, ports.SetSupervisorModeInput{Actor: actor, Enabled: *req.Enabled})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
