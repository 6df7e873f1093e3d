package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/scan"
	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/general/jwt"
	"school-bus/internal/general/logger"
	"school-bus/internal/general/metrics"
	"school-bus/internal/general/websocket"
	"school-bus/internal/ports"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
)

// serviceTimeout bounds every service call made from a request.
const serviceTimeout = 5 * time.Second

// crew is every role that may read a trip of its school.
var crew = []user.Role{user.RoleDriver, user.RoleSupervisor, user.RoleAdmin}

// TripHTTPHandler adapts HTTP requests to the TripService.
type TripHTTPHandler struct {
	svc       ports.TripService
	logger    *logger.Logger
	auth      *jwt.Manager
	websocket *websocket.WebSocket
	metrics   *metrics.Collector
	validate  *validator.Validate
	devTokens bool
}

// NewTripHTTPHandler wires an HTTP handler around the TripService. ws and m may be nil.
func NewTripHTTPHandler(
	svc ports.TripService,
	logger *logger.Logger,
	auth *jwt.Manager,
	ws *websocket.WebSocket,
	m *metrics.Collector,
) *TripHTTPHandler {
	return &TripHTTPHandler{
		svc:       svc,
		logger:    logger,
		auth:      auth,
		websocket: ws,
		metrics:   m,
		validate:  newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// EnableDevTokens mounts POST /tokens on the next RegisterRoutes call. The route is unauthenticated.
func (handler *TripHTTPHandler) EnableDevTokens() {
	handler.devTokens = true
}

// RegisterRoutes mounts trip endpoints on the provided mux.
func (handler *TripHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc, roles ...user.Role) http.HandlerFunc {
		return jwt.AuthMiddlewareFunc(handler.auth, roles...)(h)
	}

	mux.HandleFunc("POST /trips", authed(handler.handleCreateTrip, user.RoleDriver, user.RoleAdmin))
	mux.HandleFunc("GET /trips/active", authed(handler.handleActiveTrips, crew...))
	mux.HandleFunc("GET /trips/{trip_id}", authed(handler.handleGetTrip, crew...))
	mux.HandleFunc("POST /trips/{trip_id}/start", authed(handler.handleStartTrip, crew...))
	mux.HandleFunc("POST /trips/{trip_id}/end", authed(handler.handleEndTrip, crew...))
	mux.HandleFunc("PUT /trips/{trip_id}/passengers/{student_id}", authed(handler.handleSetPassengerStatus, crew...))
	mux.HandleFunc("POST /trips/{trip_id}/scans", authed(handler.handleScan, crew...))
	mux.HandleFunc("POST /trips/{trip_id}/bulk", authed(handler.handleSubmitBulk, crew...))
	mux.HandleFunc("GET /batches/{batch_id}", authed(handler.handleGetBatch, crew...))
	mux.HandleFunc("GET /trips/{trip_id}/route", authed(handler.handlePlanRoute, crew...))
	mux.HandleFunc("GET /trips/{trip_id}/summary", authed(handler.handleTripSummary, crew...))
	mux.HandleFunc("PUT /trips/{trip_id}/supervision", authed(handler.handleSetDriverSupervision, crew...))
	mux.HandleFunc("PUT /profiles/me/supervisor-mode", authed(handler.handleSetSupervisorMode, user.RoleDriver))

	// the socket authenticates itself
	if handler.websocket != nil {
		mux.HandleFunc("GET /ws/trips/{trip_id}", handler.websocket.ConnectTrip)
	}

	mux.HandleFunc("GET /health", handler.handleHealth)
	if handler.metrics != nil {
		mux.Handle("GET /metrics", handler.metrics.Handler())
	}
	if handler.devTokens {
		mux.HandleFunc("POST /tokens", handler.handleCreateToken)
	}
}

// ----- request DTO helpers -----

// pointDTO is a coordinate as sent by the apps. Zero components mean "no fix" and are rejected.
type pointDTO struct {
	Latitude  float64 `json:"latitude" validate:"required,latitude"`
	Longitude float64 `json:"longitude" validate:"required,longitude"`
}

func (p *pointDTO) point() *geo.Point {
	if p == nil {
		return nil
	}
	return &geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// decodeJSON reads a strict JSON body into dst and validates it. It answers the request itself on failure.
func (handler *TripHTTPHandler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}

	if err := handler.validate.Struct(dst); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, validationMessage(err), err)
		return false
	}
	return true
}

// validationMessage names the first failing field in the JSON terms the client used.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " is invalid (" + fe.Tag() + ")"
	}
}

// actor reads the caller from the verified claims.
func (handler *TripHTTPHandler) actor(ctx context.Context, w http.ResponseWriter, r *http.Request) (ports.Actor, bool) {
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return ports.Actor{}, false
	}
	return claims.Actor(), true
}

// serviceError maps domain errors to HTTP statuses.
func (handler *TripHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	case errors.Is(err, trip.ErrNotAuthorized):
		handler.httpError(ctx, w, http.StatusForbidden, err.Error(), err)
	case errors.Is(err, trip.ErrNotFound),
		errors.Is(err, user.ErrProfileNotFound),
		errors.Is(err, bulk.ErrBatchNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, trip.ErrInvalidStateTransition),
		errors.Is(err, passenger.ErrVersionConflict):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, trip.ErrUnknownStudent),
		errors.Is(err, scan.ErrUnknownCode):
		handler.httpError(ctx, w, http.StatusUnprocessableEntity, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		handler.httpError(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	default:
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	}
}

// statusFor is the status serviceError would pick, for responses that carry a body of their own.
func statusFor(err error) int {
	switch {
	case errors.Is(err, trip.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, trip.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trip.ErrInvalidStateTransition), errors.Is(err, passenger.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, trip.ErrUnknownStudent), errors.Is(err, scan.ErrUnknownCode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ----- general helpers -----

// jsonResponse takes any type of data and encode it to HTTP response.
func (handler *TripHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *TripHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnsupportedMediaType {
		action = "unsupported_media_type"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *TripHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	ctx = handler.logger.WithRequestID(ctx, reqID)
	if claims, ok := jwt.FromContext(ctx); ok {
		ctx = handler.logger.WithSchoolID(ctx, claims.SchoolID)
	}
	return ctx
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
