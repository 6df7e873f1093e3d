package handler

import (
	"context"
	"net/http"
	"strconv"

	"school-bus/internal/domain/geo"
	"school-bus/internal/ports"
)

// ----- Handler: GET /trips/{trip_id}/route -----

// handlePlanRoute accepts an optional ?lat=&lng= fix that overrides the stored driver position.
func (handler *TripHTTPHandler) handlePlanRoute(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")
	ctx = handler.logger.WithTripID(ctx, tripID)

	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	position, err := queryPoint(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "lat and lng must be a valid coordinate", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	plan, err := handler.svc.PlanRoute(ctxWithTimeout, ports.PlanRouteInput{
		SchoolID:        actor.SchoolID,
		TripID:          tripID,
		CurrentPosition: position,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, plan)
}

// queryPoint returns nil when neither lat nor lng is given.
func queryPoint(r *http.Request) (*geo.Point, error) {
	q := r.URL.Query()
	rawLat, rawLng := q.Get("lat"), q.Get("lng")
	if rawLat == "" && rawLng == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return nil, err
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return nil, err
	}
	p, err := geo.NewPoint(lat, lng)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
