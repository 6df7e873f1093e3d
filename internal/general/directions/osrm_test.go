package directions

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/route"
	"school-bus/internal/general/config"
	"school-bus/internal/general/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{
  "code": "Ok",
  "routes": [{"legs": [{"distance": 1200, "duration": 90}, {"distance": 800.5, "duration": 60}]}],
  "waypoints": [
    {"location": [-74.0, 40.0]},
    {"location": [-74.0, 40.01]},
    {"location": [-74.0, 40.0]}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	var cfg config.Config
	cfg.Directions.BaseURL = srv.URL + "/"
	cfg.Directions.Profile = "driving"
	cfg.Directions.Timeout = time.Second
	cfg.Directions.CacheTTL = time.Minute
	cfg.Directions.CacheMax = 8
	c := New(&cfg, logger.NewWithWriter("test", io.Discard))
	require.NotNil(t, c)
	return c, srv
}

var request = route.DirectionsRequest{
	Origin:      geo.Point{Latitude: 40.0, Longitude: -74.0},
	Destination: geo.Point{Latitude: 40.0, Longitude: -74.0},
	Waypoints:   []geo.Point{{Latitude: 40.01, Longitude: -74.0}},
}

func TestDirectionsParsesLegsAndCaches(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/route/v1/driving/-74.000000,40.000000;-74.000000,40.010000;-74.000000,40.000000", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("overview"))
		_, _ = w.Write([]byte(okBody))
	})

	d, err := c.Directions(context.Background(), request)
	require.NoError(t, err)
	require.Len(t, d.Legs, 2)
	assert.InDelta(t, 1.2, d.Legs[0].DistanceKM, 1e-9)
	assert.Equal(t, 90*time.Second, d.Legs[0].Duration)
	assert.Equal(t, geo.Point{Latitude: 40.01, Longitude: -74.0}, d.Legs[0].End)
	assert.Equal(t, geo.Point{Latitude: 40.01, Longitude: -74.0}, d.Legs[1].Start)

	_, err = c.Directions(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call is served from cache")
}

func TestDirectionsFailuresAreUnavailable(t *testing.T) {
	cases := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"no route", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"code":"NoRoute","routes":[]}`)) }},
		{"garbage", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, tc.h)
			d, err := c.Directions(context.Background(), request)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, route.ErrDirectionsUnavailable)
		})
	}
}

func TestDirectionsRejectsTooManyWaypoints(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	req := request
	req.Waypoints = make([]geo.Point, route.MaxWaypoints+1)
	_, err := c.Directions(context.Background(), req)
	assert.ErrorIs(t, err, route.ErrDirectionsUnavailable)
}

func TestNewWithoutBaseURL(t *testing.T) {
	var cfg config.Config
	assert.Nil(t, New(&cfg, logger.NewWithWriter("test", io.Discard)))
}
