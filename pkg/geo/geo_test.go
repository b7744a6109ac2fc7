package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	telAviv   = Point{Lat: 32.0853, Lon: 34.7818}
	jerusalem = Point{Lat: 31.7683, Lon: 35.2137}
	eilat     = Point{Lat: 29.5577, Lon: 34.9519}
)

func TestHaversine(t *testing.T) {
	t.Run("known city distances", func(t *testing.T) {
		// Tel Aviv <-> Jerusalem is ~54 km as the crow flies.
		assert.InDelta(t, 54, Haversine(telAviv, jerusalem), 3)
		// Tel Aviv <-> Eilat is ~281 km.
		assert.InDelta(t, 281, Haversine(telAviv, eilat), 5)
	})

	t.Run("zero distance to itself", func(t *testing.T) {
		assert.Zero(t, Haversine(telAviv, telAviv))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.InDelta(t, Haversine(telAviv, eilat), Haversine(eilat, telAviv), 1e-9)
	})
}

func TestPointToPolylineKm(t *testing.T) {
	poly := []Point{
		{Lat: 31.0, Lon: 34.8},
		{Lat: 31.5, Lon: 34.8},
		{Lat: 32.0, Lon: 34.8},
	}

	t.Run("zero on a vertex", func(t *testing.T) {
		assert.InDelta(t, 0, PointToPolylineKm(Point{Lat: 31.5, Lon: 34.8}, poly), 1e-6)
	})

	t.Run("zero on a segment interior", func(t *testing.T) {
		assert.InDelta(t, 0, PointToPolylineKm(Point{Lat: 31.25, Lon: 34.8}, poly), 1e-3)
	})

	t.Run("perpendicular offset", func(t *testing.T) {
		// 0.1 degrees of longitude at ~31.5N is roughly 9.5 km.
		d := PointToPolylineKm(Point{Lat: 31.5, Lon: 34.9}, poly)
		assert.InDelta(t, 9.5, d, 0.5)
	})

	t.Run("beyond the endpoint clamps to it", func(t *testing.T) {
		p := Point{Lat: 32.5, Lon: 34.8}
		assert.InDelta(t, Haversine(p, poly[2]), PointToPolylineKm(p, poly), 1e-6)
	})

	t.Run("never negative", func(t *testing.T) {
		for _, p := range []Point{telAviv, jerusalem, eilat} {
			assert.GreaterOrEqual(t, PointToPolylineKm(p, poly), 0.0)
		}
	})

	t.Run("empty polyline is infinitely far", func(t *testing.T) {
		assert.True(t, math.IsInf(PointToPolylineKm(telAviv, nil), 1))
	})

	t.Run("single point polyline", func(t *testing.T) {
		assert.InDelta(t, Haversine(telAviv, jerusalem),
			PointToPolylineKm(telAviv, []Point{jerusalem}), 1e-9)
	})
}

func TestCorridorThresholdKm(t *testing.T) {
	t.Run("bounded", func(t *testing.T) {
		assert.Equal(t, MinCorridorKm, CorridorThresholdKm(0))
		assert.Equal(t, MaxCorridorKm, CorridorThresholdKm(1000))
	})

	t.Run("monotonic non-decreasing", func(t *testing.T) {
		prev := 0.0
		for d := 0.0; d <= 500; d += 5 {
			cur := CorridorThresholdKm(d)
			assert.GreaterOrEqual(t, cur, prev)
			assert.GreaterOrEqual(t, cur, MinCorridorKm)
			assert.LessOrEqual(t, cur, MaxCorridorKm)
			prev = cur
		}
	})

	t.Run("linear middle of the schedule", func(t *testing.T) {
		assert.InDelta(t, 1.5+0.05*50, CorridorThresholdKm(50), 1e-9)
	})
}

func TestOnCorridor(t *testing.T) {
	poly := []Point{
		{Lat: 31.0, Lon: 34.8},
		{Lat: 32.0, Lon: 34.8},
	}

	// ~0.021 degrees of longitude at 31.5N is about 2.0 km off the line.
	near := Point{Lat: 31.5, Lon: 34.821}
	// ~0.042 degrees is about 4.0 km off.
	far := Point{Lat: 31.5, Lon: 34.842}

	assert.True(t, OnCorridor(near, poly, 3.0))
	assert.False(t, OnCorridor(far, poly, 3.0))
}
