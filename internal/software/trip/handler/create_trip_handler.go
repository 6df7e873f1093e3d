package handler

import (
	"context"
	"net/http"

	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/trip"
	"school-bus/internal/ports"
)

// --- Request DTO (HTTP boundary) ---

type createTripRequest struct {
	Mode                    string   `json:"mode" validate:"required,oneof=pickup dropoff"`
	DriverID                string   `json:"driver_id"`
	SupervisorID            string   `json:"supervisor_id"`
	AllowDriverAsSupervisor bool     `json:"allow_driver_as_supervisor"`
	School                  pointDTO `json:"school_location"`
	Roster                  []string `json:"roster" validate:"required,min=1,dive,required"`
}

// ----- Handler: POST /trips -----

func (handler *TripHTTPHandler) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req createTripRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	mode, err := trip.ParseMode(req.Mode)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "mode must be one of: pickup, dropoff", err)
		return
	}

	in := ports.CreateTripInput{
		Actor:                   actor,
		Mode:                    mode,
		DriverID:                req.DriverID,
		SupervisorID:            req.SupervisorID,
		AllowDriverAsSupervisor: req.AllowDriverAsSupervisor,
		School:                  geo.Point{Latitude: req.School.Latitude, Longitude: req.School.Longitude},
		Roster:                  req.Roster,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.CreateTrip(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(handler.logger.WithTripID(ctxWithTimeout, res.TripID), w, http.StatusCreated, res)
}
