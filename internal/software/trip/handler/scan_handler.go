package handler

import (
	"context"
	"net/http"

	"school-bus/internal/ports"
)

type scanRequest struct {
	Payload  string    `json:"payload" validate:"required"`
	Location *pointDTO `json:"location" validate:"omitempty"`
}

// scanResponse is the outcome the scanner plays, plus the error when there is one.
type scanResponse struct {
	ports.ScanOutcome
	Error string `json:"error,omitempty"`
}

// ----- Handler: POST /trips/{trip_id}/scans -----

// handleScan always answers with the outcome so the scanner can play its cue, even on failure.
func (handler *TripHTTPHandler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req scanRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	out, err := handler.svc.IngestScan(ctxWithTimeout, ports.ScanInput{
		Actor:    actor,
		TripID:   tripID,
		Raw:      req.Payload,
		Location: req.Location.point(),
	})
	if err != nil {
		handler.logger.Error(ctxWithTimeout, "scan_failed", "Scan was not applied", err, map[string]any{
			"kind": string(out.Kind),
		})
		handler.jsonResponse(ctxWithTimeout, w, statusFor(err), scanResponse{ScanOutcome: out, Error: err.Error()})
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, scanResponse{ScanOutcome: out})
}
