package handler

import (
	"context"
	"net/http"
)

// ----- Handler: GET /trips/{trip_id}/summary -----

func (handler *TripHTTPHandler) handleTripSummary(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	summary, err := handler.svc.TripSummary(ctxWithTimeout, actor.SchoolID, r.PathValue("trip_id"))
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, summary)
}
