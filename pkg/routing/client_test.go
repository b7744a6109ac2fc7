package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trempist/trempist/pkg/geo"
)

const okResponse = `{
	"code": "Ok",
	"routes": [{
		"distance": 54321.0,
		"duration": 3600.0,
		"geometry": {"coordinates": [[34.78, 32.08], [34.90, 31.95], [35.21, 31.77]]}
	}]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL,
		WithCallTimeout(2*time.Second),
		WithTotalBudget(5*time.Second))
}

func TestRoute(t *testing.T) {
	t.Run("parses polyline and distance", func(t *testing.T) {
		var gotPath string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path + "?" + r.URL.RawQuery
			fmt.Fprint(w, okResponse)
		})

		res, err := c.Route(context.Background(),
			geo.Point{Lat: 32.08, Lon: 34.78}, geo.Point{Lat: 31.77, Lon: 35.21})
		require.NoError(t, err)

		assert.InDelta(t, 54.321, res.DistanceKm, 1e-9)
		assert.InDelta(t, 3600, res.DurationS, 1e-9)
		require.Len(t, res.Polyline, 3)
		// GeoJSON order is [lon, lat]; the polyline is (lat, lon).
		assert.InDelta(t, 32.08, res.Polyline[0].Lat, 1e-9)
		assert.InDelta(t, 34.78, res.Polyline[0].Lon, 1e-9)

		assert.Contains(t, gotPath, "/route/v1/driving/")
		assert.Contains(t, gotPath, "overview=full")
		assert.Contains(t, gotPath, "geometries=geojson")
	})

	t.Run("server errors map to ErrRouteUnavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.Route(context.Background(), geo.Point{}, geo.Point{})
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	})

	t.Run("malformed body maps to ErrRouteUnavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": "Ok", "routes": [{"geometry": {"coordinates": [[34.78]]}}]}`)
		})
		_, err := c.Route(context.Background(), geo.Point{}, geo.Point{})
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	})

	t.Run("no-route responses fail", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": "NoRoute", "routes": []}`)
		})
		_, err := c.Route(context.Background(), geo.Point{}, geo.Point{})
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, okResponse)
		})

		res, err := c.Route(context.Background(), geo.Point{}, geo.Point{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, calls.Load())
		assert.NotEmpty(t, res.Polyline)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Route(ctx, geo.Point{}, geo.Point{})
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	})
}
