package handler

import (
	"context"
	"io"
	"net/http"

	"school-bus/internal/ports"
)

type startTripRequest struct {
	DriverPosition *pointDTO `json:"driver_position" validate:"required"`
}

// ----- Handler: POST /trips/{trip_id}/start -----

func (handler *TripHTTPHandler) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req startTripRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.StartTrip(ctxWithTimeout, ports.StartTripInput{
		Actor:          actor,
		TripID:         tripID,
		DriverPosition: req.DriverPosition.point(),
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /trips/{trip_id}/end -----

func (handler *TripHTTPHandler) handleEndTrip(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")
	ctx = handler.logger.WithTripID(ctx, tripID)

	// the body is optional and ignored
	_, _ = io.Copy(io.Discard, http.MaxBytesReader(w, r.Body, 1<<10))

	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.EndTrip(ctxWithTimeout, ports.EndTripInput{Actor: actor, TripID: tripID})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
