// Package routing calls the external driving-route engine and parses its
// polyline + distance response.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/trempist/trempist/pkg/geo"
)

// ErrRouteUnavailable covers every recoverable failure mode: network errors,
// non-2xx statuses, timeouts and malformed bodies. Callers degrade to
// name-exact matching when it is returned.
var ErrRouteUnavailable = errors.New("routing service unavailable")

// Result is a resolved driving route.
type Result struct {
	Polyline   []geo.Point
	DistanceKm float64
	DurationS  float64
}

// Client talks to an OSRM-compatible routing endpoint.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	callTimeout time.Duration
	totalBudget time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds a single routing call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithTotalBudget bounds the wall time spent across retries.
func WithTotalBudget(d time.Duration) Option {
	return func(c *Client) { c.totalBudget = d }
}

// WithHTTPClient overrides the underlying HTTP client, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a routing client for the given OSRM base URL
// (e.g. "https://router.project-osrm.org").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{},
		callTimeout: 8 * time.Second,
		totalBudget: 30 * time.Second,
		maxAttempts: 3,
		logger:      slog.Default().With("component", "routing-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// osrmResponse mirrors the subset of the OSRM /route response we consume.
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

// Route resolves the driving route from one point to another, retrying with a
// short backoff inside the total budget. All failures map to
// ErrRouteUnavailable.
func (c *Client) Route(ctx context.Context, from, to geo.Point) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.totalBudget)
	defer cancel()

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.routeOnce(ctx, from, to)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("routing call failed",
			"attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, lastErr)
}

func (c *Client) routeOnce(ctx context.Context, from, to geo.Point) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, from.Lon, from.Lat, to.Lon, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("no route in response (code %q)", parsed.Code)
	}

	route := parsed.Routes[0]
	polyline := make([]geo.Point, 0, len(route.Geometry.Coordinates))
	for _, coord := range route.Geometry.Coordinates {
		if len(coord) < 2 {
			return nil, fmt.Errorf("malformed coordinate in response")
		}
		polyline = append(polyline, geo.Point{Lat: coord[1], Lon: coord[0]})
	}
	if len(polyline) < 2 {
		return nil, fmt.Errorf("degenerate polyline (%d points)", len(polyline))
	}

	return &Result{
		Polyline:   polyline,
		DistanceKm: route.Distance / 1000,
		DurationS:  route.Duration,
	}, nil
}
