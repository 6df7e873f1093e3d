package handler

import (
	"context"
	"net/http"

	"school-bus/internal/domain/passenger"
	"school-bus/internal/ports"
)

type setPassengerStatusRequest struct {
	Status   string    `json:"status" validate:"required,oneof=pending boarded dropped absent no_show"`
	Method   string    `json:"method" validate:"omitempty,oneof=qr manual auto"`
	Location *pointDTO `json:"location" validate:"omitempty"`
}

// ----- Handler: PUT /trips/{trip_id}/passengers/{student_id} -----

func (handler *TripHTTPHandler) handleSetPassengerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req setPassengerStatusRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	actor, ok := handler.actor(ctx, w, r)
	if !ok {
		return
	}

	status, err := passenger.ParseStatus(req.Status)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return
	}
	method := passenger.MethodManual
	if req.Method != "" {
		if method, err = passenger.ParseMethod(req.Method); err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
			return
		}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.SetPassengerStatus(ctxWithTimeout, ports.SetPassengerStatusInput{
		Actor:     actor,
		TripID:    tripID,
		StudentID: r.PathValue("student_id"),
		Status:    status,
		Method:    method,
		Location:  req.Location.point(),
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
