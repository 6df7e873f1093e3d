// Package directions is an OSRM route client with a small LRU response cache.
package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/route"
	"school-bus/internal/general/config"
	"school-bus/internal/general/logger"
	"school-bus/internal/ports"

	"github.com/bluele/gcache"
)

// Client calls GET {base}/route/v1/{profile}/{lon,lat;...}?overview=false.
type Client struct {
	baseURL    string
	profile    string
	httpClient *http.Client
	cache      gcache.Cache
	ttl        time.Duration
	logger     *logger.Logger
}

var _ ports.DirectionsService = (*Client)(nil)

// New returns nil when no directions base URL is configured.
func New(cfg *config.Config, log *logger.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.Directions.BaseURL), "/")
	if base == "" {
		return nil
	}
	return &Client{
		baseURL:    base,
		profile:    cfg.Directions.Profile,
		httpClient: &http.Client{Timeout: cfg.Directions.Timeout},
		cache:      gcache.New(cfg.Directions.CacheMax).LRU().Build(),
		ttl:        cfg.Directions.CacheTTL,
		logger:     log,
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Legs []struct {
			Distance float64 `json:"distance"` // meters
			Duration float64 `json:"duration"` // seconds
		} `json:"legs"`
	} `json:"routes"`
	Waypoints []struct {
		Location [2]float64 `json:"location"` // [lon, lat]
	} `json:"waypoints"`
}

// Directions returns the legs of the road route origin -> waypoints -> destination.
// Every failure wraps route.ErrDirectionsUnavailable.
func (c *Client) Directions(ctx context.Context, req route.DirectionsRequest) (*route.Directions, error) {
	if len(req.Waypoints) > route.MaxWaypoints {
		return nil, fmt.Errorf("%w: %d waypoints exceeds %d", route.ErrDirectionsUnavailable, len(req.Waypoints), route.MaxWaypoints)
	}

	points := make([]geo.Point, 0, len(req.Waypoints)+2)
	points = append(points, req.Origin)
	points = append(points, req.Waypoints...)
	points = append(points, req.Destination)
	coords := coordinatePath(points)

	if cached, err := c.cache.Get(coords); err == nil {
		if d, ok := cached.(*route.Directions); ok {
			return d, nil
		}
	} else if !errors.Is(err, gcache.KeyNotFoundError) {
		c.logger.Error(ctx, "directions_cache_failed", "Directions cache lookup failed", err, nil)
	}

	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=false", c.baseURL, c.profile, coords)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", route.ErrDirectionsUnavailable, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", route.ErrDirectionsUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error(ctx, "directions_bad_status", "Directions service returned non-200", nil, map[string]any{
			"status": resp.StatusCode, "body": string(body),
		})
		return nil, fmt.Errorf("%w: status %d", route.ErrDirectionsUnavailable, resp.StatusCode)
	}

	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", route.ErrDirectionsUnavailable, err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, fmt.Errorf("%w: code %q %s", route.ErrDirectionsUnavailable, out.Code, out.Message)
	}

	d := toDirections(&out, points)
	if err := c.cache.SetWithExpire(coords, d, c.ttl); err != nil {
		c.logger.Error(ctx, "directions_cache_failed", "Failed to cache directions", err, nil)
	}

	c.logger.Debug(ctx, "directions_fetched", "Fetched road directions", map[string]any{
		"legs": len(d.Legs), "elapsed_ms": time.Since(start).Milliseconds(),
	})
	return d, nil
}

func coordinatePath(points []geo.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%.6f,%.6f", p.Longitude, p.Latitude)
	}
	return strings.Join(parts, ";")
}

// toDirections prefers OSRM's snapped waypoint locations and falls back to the requested points.
func toDirections(out *osrmResponse, requested []geo.Point) *route.Directions {
	at := func(i int) geo.Point {
		if i < len(out.Waypoints) {
			loc := out.Waypoints[i].Location
			return geo.Point{Latitude: loc[1], Longitude: loc[0]}
		}
		if i < len(requested) {
			return requested[i]
		}
		return requested[len(requested)-1]
	}

	legs := out.Routes[0].Legs
	d := &route.Directions{Legs: make([]route.Leg, 0, len(legs))}
	for i, leg := range legs {
		d.Legs = append(d.Legs, route.Leg{
			Start:      at(i),
			End:        at(i + 1),
			DistanceKM: leg.Distance / 1000,
			Duration:   time.Duration(leg.Duration * float64(time.Second)),
		})
	}
	return d
}
