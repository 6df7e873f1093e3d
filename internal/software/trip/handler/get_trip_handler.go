package handler

import (
	"context"
	"net/http"

	"school-bus/internal/ports"
)

// ----- Handler: GET /trips/{trip_id} -----

func (handler *TripHTTPHandler) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.GetTrip(ctxWithTimeout, actor.SchoolID, r.PathValue("trip_id"))
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: GET /trips/active -----

func (handler *TripHTTPHandler) handleActiveTrips(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	trips, err := handler.svc.ListActiveTrips(ctxWithTimeout, actor.SchoolID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	type resp struct {
		Trips []ports.TripResult `json:"trips"`
		Count int                `json:"count"`
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, resp{Trips: trips, Count: len(trips)})
}
