package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/scan"
	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/general/jwt"
	"school-bus/internal/general/logger"
	"school-bus/internal/general/metrics"
	"school-bus/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService records the last input and answers with err when set.
type stubService struct {
	err error

	created     ports.CreateTripInput
	started     ports.StartTripInput
	passenger   ports.SetPassengerStatusInput
	scanned     ports.ScanInput
	scanOutcome ports.ScanOutcome
	bulkIn      ports.SubmitBulkInput
	routeIn     ports.PlanRouteInput
	supervision ports.SetDriverSupervisionInput
	mode        ports.SetSupervisorModeInput
}

func (s *stubService) CreateTrip(_ context.Context, in ports.CreateTripInput) (ports.TripResult, error) {
	s.created = in
	return ports.TripResult{TripID: "trip-1", Mode: in.Mode.String(), Status: "scheduled"}, s.err
}

func (s *stubService) GetTrip(_ context.Context, _, tripID string) (ports.TripResult, error) {
	return ports.TripResult{TripID: tripID}, s.err
}

func (s *stubService) ListActiveTrips(context.Context, string) ([]ports.TripResult, error) {
	return []ports.TripResult{{TripID: "trip-1"}, {TripID: "trip-2"}}, s.err
}

func (s *stubService) StartTrip(_ context.Context, in ports.StartTripInput) (ports.TripResult, error) {
	s.started = in
	return ports.TripResult{TripID: in.TripID, Status: "active"}, s.err
}

func (s *stubService) EndTrip(_ context.Context, in ports.EndTripInput) (ports.TripResult, error) {
	return ports.TripResult{TripID: in.TripID, Status: "ended"}, s.err
}

func (s *stubService) SetPassengerStatus(_ context.Context, in ports.SetPassengerStatusInput) (ports.PassengerStatusResult, error) {
	s.passenger = in
	return ports.PassengerStatusResult{TripID: in.TripID, StudentID: in.StudentID, Status: in.Status.String()}, s.err
}

func (s *stubService) IngestScan(_ context.Context, in ports.ScanInput) (ports.ScanOutcome, error) {
	s.scanned = in
	return s.scanOutcome, s.err
}

func (s *stubService) SubmitBulk(_ context.Context, in ports.SubmitBulkInput) (ports.BatchResult, error) {
	s.bulkIn = in
	return ports.BatchResult{BatchID: "batch-1", TripID: in.TripID}, s.err
}

func (s *stubService) GetBatch(_ context.Context, _, batchID string) (ports.BatchResult, error) {
	return ports.BatchResult{BatchID: batchID}, s.err
}

func (s *stubService) PlanRoute(_ context.Context, in ports.PlanRouteInput) (ports.RoutePlan, error) {
	s.routeIn = in
	return ports.RoutePlan{TripID: in.TripID, Source: "none"}, s.err
}

func (s *stubService) TripSummary(_ context.Context, _, tripID string) (ports.TripSummary, error) {
	return ports.TripSummary{TripID: tripID, Counts: map[string]int{"pending": 1}}, s.err
}

func (s *stubService) SetDriverSupervision(_ context.Context, in ports.SetDriverSupervisionInput) (ports.SupervisionResult, error) {
	s.supervision = in
	return ports.SupervisionResult{TripID: in.TripID, Enabled: in.Allow}, s.err
}

func (s *stubService) SetSupervisorMode(_ context.Context, in ports.SetSupervisorModeInput) (ports.SupervisionResult, error) {
	s.mode = in
	return ports.SupervisionResult{ProfileID: in.Actor.ID, Enabled: in.Enabled}, s.err
}

func (s *stubService) RunBackgroundConsumers(context.Context) {}

type testServer struct {
	srv  *httptest.Server
	svc  *stubService
	auth *jwt.Manager
}

func newTestServer(t *testing.T, m *metrics.Collector) *testServer {
	t.Helper()
	return newTestServerWith(t, m, false)
}

func newTestServerWith(t *testing.T, m *metrics.Collector, devTokens bool) *testServer {
	t.Helper()
	svc := &stubService{}
	auth := jwt.NewManager("test-secret", time.Hour)
	h := NewTripHTTPHandler(svc, logger.NewWithWriter("trip-handler-test", io.Discard), auth, nil, m)
	if devTokens {
		h.EnableDevTokens()
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, svc: svc, auth: auth}
}

func (ts *testServer) token(t *testing.T, userID string, role user.Role) string {
	t.Helper()
	tok, _, err := ts.auth.IssueUserToken(userID, "school-1", role)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestTokenRouteOffByDefault(t *testing.T) {
	ts := newTestServer(t, nil)

	status, _ := ts.do(t, http.MethodPost, "/tokens", "", `{"user_id":"admin-9","school_id":"school-1","role":"ADMIN"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodPost, "/trips", "", `{"mode":"pickup"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Empty(t, ts.svc.created.Actor.ID, "anonymous callers never reach the service")
}

func TestCreateTokenAndUseIt(t *testing.T) {
	ts := newTestServerWith(t, nil, true)

	status, body := ts.do(t, http.MethodPost, "/tokens", "", `{"user_id":"driver-1","school_id":"school-1","role":"driver"}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "DRIVER", body["role"])
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)

	status, body = ts.do(t, http.MethodGet, "/trips/trip-9", tok, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "trip-9", body["trip_id"])

	status, body = ts.do(t, http.MethodPost, "/tokens", "", `{"user_id":"x","school_id":"school-1","role":"PARENT"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "role must be one of")

	status, body = ts.do(t, http.MethodPost, "/tokens", "", `{"user_id":"x","role":"ADMIN"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "school_id is required", body["error"])
}

func TestCreateTrip(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.token(t, "admin-1", user.RoleAdmin)
	valid := `{"mode":"pickup","driver_id":"driver-1","school_location":{"latitude":40.1,"longitude":-74.2},"roster":["s1","s2"]}`

	cases := []struct {
		name    string
		token   string
		body    string
		want    int
		wantErr string
	}{
		{"created", admin, valid, http.StatusCreated, ""},
		{"no token", "", valid, http.StatusUnauthorized, "authorization header missing"},
		{"supervisor role", ts.token(t, "sup-1", user.RoleSupervisor), valid, http.StatusForbidden, "role not allowed"},
		{"missing mode", admin, `{"school_location":{"latitude":40.1,"longitude":-74.2},"roster":["s1"]}`, http.StatusBadRequest, "mode is required"},
		{"bad mode", admin, `{"mode":"field_trip","school_location":{"latitude":40.1,"longitude":-74.2},"roster":["s1"]}`, http.StatusBadRequest, "mode must be one of: pickup dropoff"},
		{"zero school", admin, `{"mode":"pickup","school_location":{"latitude":0,"longitude":-74.2},"roster":["s1"]}`, http.StatusBadRequest, "latitude is required"},
		{"empty roster", admin, `{"mode":"pickup","school_location":{"latitude":40.1,"longitude":-74.2},"roster":[]}`, http.StatusBadRequest, "roster is invalid (min)"},
		{"unknown field", admin, `{"mode":"pickup","colour":"yellow"}`, http.StatusBadRequest, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/trips", c.token, c.body)
			assert.Equal(t, c.want, status, body)
			if c.wantErr != "" {
				assert.Equal(t, c.wantErr, body["error"])
			}
		})
	}

	assert.Equal(t, trip.ModePickup, ts.svc.created.Mode)
	assert.Equal(t, []string{"s1", "s2"}, ts.svc.created.Roster)
	assert.Equal(t, "school-1", ts.svc.created.Actor.SchoolID)
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{trip.ErrNotAuthorized, http.StatusForbidden},
		{trip.ErrNotFound, http.StatusNotFound},
		{bulk.ErrBatchNotFound, http.StatusNotFound},
		{user.ErrProfileNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: pending -> pending", trip.ErrInvalidStateTransition), http.StatusConflict},
		{passenger.ErrVersionConflict, http.StatusConflict},
		{trip.ErrUnknownStudent, http.StatusUnprocessableEntity},
		{bulk.ErrEmptyBatch, http.StatusBadRequest},
		{fmt.Errorf("insert trip: %w", &pgconn.PgError{Code: "23505"}), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, c := range cases {
		t.Run(c.err.Error(), func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.svc.err = c.err
			status, _ := ts.do(t, http.MethodGet, "/trips/trip-1/summary", ts.token(t, "sup-1", user.RoleSupervisor), "")
			assert.Equal(t, c.want, status)
		})
	}
}

func TestStartTripRequiresPosition(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, "driver-1", user.RoleDriver)

	status, body := ts.do(t, http.MethodPost, "/trips/trip-1/start", tok, `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "driver_position is required", body["error"])

	status, body = ts.do(t, http.MethodPost, "/trips/trip-1/start", tok, `{"driver_position":{"latitude":40.2,"longitude":-74.1}}`)
	require.Equal(t, http.StatusOK, status, body)
	require.NotNil(t, ts.svc.started.DriverPosition)
	assert.Equal(t, 40.2, ts.svc.started.DriverPosition.Latitude)
	assert.Equal(t, "trip-1", ts.svc.started.TripID)

	status, body = ts.do(t, http.MethodPost, "/trips/trip-1/end", tok, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ended", body["status"])
}

func TestSetPassengerStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, "sup-1", user.RoleSupervisor)

	status, _ := ts.do(t, http.MethodPut, "/trips/trip-1/passengers/s7", tok, `{"status":"boarded"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "s7", ts.svc.passenger.StudentID)
	assert.Equal(t, passenger.MethodManual, ts.svc.passenger.Method, "manual is the default method")
	assert.Nil(t, ts.svc.passenger.Location)

	status, _ = ts.do(t, http.MethodPut, "/trips/trip-1/passengers/s7", tok,
		`{"status":"dropped","method":"auto","location":{"latitude":40.3,"longitude":-74.3}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, passenger.MethodAuto, ts.svc.passenger.Method)
	require.NotNil(t, ts.svc.passenger.Location)

	status, body := ts.do(t, http.MethodPut, "/trips/trip-1/passengers/s7", tok, `{"status":"teleported"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "status must be one of")

	req, err := http.NewRequest(http.MethodPut, ts.srv.URL+"/trips/trip-1/passengers/s7", strings.NewReader(`{"status":"boarded"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestScanAlwaysReturnsOutcome(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, "sup-1", user.RoleSupervisor)

	ts.svc.scanOutcome = ports.ScanOutcome{Kind: ports.ScanApplied, Feedback: ports.FeedbackSuccess, StudentID: "s1"}
	status, body := ts.do(t, http.MethodPost, "/trips/trip-1/scans", tok, `{"payload":"{\"studentId\":\"s1\"}"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "applied", body["kind"])
	assert.Equal(t, "success", body["feedback"])
	assert.Equal(t, `{"studentId":"s1"}`, ts.svc.scanned.Raw)

	ts.svc.scanOutcome = ports.ScanOutcome{Kind: ports.ScanUnknownCode, Feedback: ports.FeedbackError, StudentID: "zz"}
	ts.svc.err = scan.ErrUnknownCode
	status, body = ts.do(t, http.MethodPost, "/trips/trip-1/scans", tok, `{"payload":"zz"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "unknown_code", body["kind"])
	assert.Equal(t, "error", body["feedback"])
	assert.Equal(t, scan.ErrUnknownCode.Error(), body["error"])

	ts.svc.scanOutcome = ports.ScanOutcome{Kind: ports.ScanFailed, Feedback: ports.FeedbackError}
	ts.svc.err = trip.ErrNotAuthorized
	status, body = ts.do(t, http.MethodPost, "/trips/trip-1/scans", tok, `{"payload":"s1"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "failed", body["kind"])
}

func TestSubmitBulkKeepsBadItems(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, "sup-1", user.RoleSupervisor)

	status, body := ts.do(t, http.MethodPost, "/trips/trip-1/bulk", tok,
		`{"operations":[{"student_id":"s1","action":"BOARDING"},{"student_id":"s2","action":"fly"},{"student_id":"","action":"dropping"}]}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "batch-1", body["batch_id"])

	require.Len(t, ts.svc.bulkIn.Intents, 3, "invalid items are forwarded and fail on their own")
	assert.Equal(t, bulk.ActionBoarding, ts.svc.bulkIn.Intents[0].Action)
	assert.False(t, ts.svc.bulkIn.Intents[1].Action.Valid())

	ts.svc.err = bulk.ErrEmptyBatch
	status, body = ts.do(t, http.MethodPost, "/trips/trip-1/bulk", tok, `{"operations":[]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, bulk.ErrEmptyBatch.Error(), body["error"])
}

func TestPlanRouteQueryPosition(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, "driver-1", user.RoleDriver)

	status, _ := ts.do(t, http.MethodGet, "/trips/trip-1/route", tok, "")
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, ts.svc.routeIn.CurrentPosition)

	status, _ = ts.do(t, http.MethodGet, "/trips/trip-1/route?lat=40.5&lng=-74.5", tok, "")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, ts.svc.routeIn.CurrentPosition)
	assert.Equal(t, -74.5, ts.svc.routeIn.CurrentPosition.Longitude)

	for _, q := range []string{"?lat=abc&lng=1", "?lat=40.5", "?lat=0&lng=0", "?lat=95&lng=10"} {
		status, _ = ts.do(t, http.MethodGet, "/trips/trip-1/route"+q, tok, "")
		assert.Equal(t, http.StatusBadRequest, status, q)
	}
}

func TestSupervisionRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	driverTok := ts.token(t, "driver-1", user.RoleDriver)

	status, body := ts.do(t, http.MethodPut, "/trips/trip-1/supervision", driverTok, `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "enabled is required", body["error"])

	status, _ = ts.do(t, http.MethodPut, "/trips/trip-1/supervision", driverTok, `{"enabled":false}`)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, ts.svc.supervision.Allow)

	status, _ = ts.do(t, http.MethodPut, "/profiles/me/supervisor-mode", driverTok, `{"enabled":true}`)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, ts.svc.mode.Enabled)
	assert.Equal(t, "driver-1", ts.svc.mode.Actor.ID)

	status, _ = ts.do(t, http.MethodPut, "/profiles/me/supervisor-mode", ts.token(t, "sup-1", user.RoleSupervisor), `{"enabled":true}`)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestActiveTripsHealthAndMetrics(t *testing.T) {
	m := metrics.NewCollector("trip-service")
	m.ScanObserved("applied")
	ts := newTestServer(t, m)

	status, body := ts.do(t, http.MethodGet, "/trips/active", ts.token(t, "admin-1", user.RoleAdmin), "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	status, body = ts.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "schoolbus_scans_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("broker down")))
	assert.Equal(t, http.StatusConflict, statusFor(passenger.ErrVersionConflict))
}
