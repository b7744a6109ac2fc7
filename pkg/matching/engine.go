// Package matching finds compatible driver/hitchhiker pairs. The engine is
// pure with respect to the store snapshot it scans: it never mutates records.
package matching

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/trempist/trempist/pkg/gazetteer"
	"github.com/trempist/trempist/pkg/models"
	"github.com/trempist/trempist/pkg/store"
)

// recurringHorizonDays is how far a recurring driver ride is expanded when
// looking for concrete trips.
const recurringHorizonDays = 7

// Engine evaluates compatibility between rides and requests under one prefix
// at a time.
type Engine struct {
	store  store.Store
	gaz    *gazetteer.Gazetteer
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow overrides the engine clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a matching engine over the given store and gazetteer.
func NewEngine(s store.Store, g *gazetteer.Gazetteer, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		gaz:    g,
		now:    time.Now,
		logger: slog.Default().With("component", "matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MatchDriverRide enumerates hitchhiker requests under prefix and returns the
// ranked matches for the given ride.
func (e *Engine) MatchDriverRide(ctx context.Context, prefix store.Prefix, driver *models.User, ride models.DriverRide) ([]models.Match, error) {
	var matches []models.Match
	err := store.ScanHitchhikers(ctx, e.store, prefix, func(hiker *models.User, req models.HitchhikerRequest) bool {
		if hiker.Phone == driver.Phone {
			return true
		}
		if m, ok := e.evaluate(driver, ride, hiker, req); ok {
			matches = append(matches, m)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	rank(matches)
	return matches, nil
}

// MatchHitchhikerRequest enumerates driver rides under prefix and returns the
// ranked matches for the given request.
func (e *Engine) MatchHitchhikerRequest(ctx context.Context, prefix store.Prefix, hiker *models.User, req models.HitchhikerRequest) ([]models.Match, error) {
	var matches []models.Match
	err := store.ScanDrivers(ctx, e.store, prefix, func(driver *models.User, ride models.DriverRide) bool {
		if driver.Phone == hiker.Phone {
			return true
		}
		if m, ok := e.evaluate(driver, ride, hiker, req); ok {
			matches = append(matches, m)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	rank(matches)
	return matches, nil
}

// MatchRecord re-runs matching for an already-persisted record, loading it
// fresh from the store. Used by the route pipeline after attaching route
// data. A record that has disappeared yields no matches.
func (e *Engine) MatchRecord(ctx context.Context, prefix store.Prefix, phone string, role models.Role, id string) ([]models.Match, error) {
	user, err := e.store.GetUser(ctx, prefix, phone)
	if err != nil {
		return nil, nil
	}
	switch role {
	case models.RoleDriver:
		if ride := user.DriverRideByID(id); ride != nil {
			return e.MatchDriverRide(ctx, prefix, user, *ride)
		}
	case models.RoleHitchhiker:
		if req := user.HitchhikerRequestByID(id); req != nil {
			return e.MatchHitchhikerRequest(ctx, prefix, user, *req)
		}
	}
	return nil, nil
}

// evaluate applies every compatibility predicate to one (ride, request) pair.
// Errors on a single candidate never abort the scan; they log and skip.
func (e *Engine) evaluate(driver *models.User, ride models.DriverRide, hiker *models.User, req models.HitchhikerRequest) (models.Match, bool) {
	if ride.AvailableSeats < 1 {
		return models.Match{}, false
	}

	window, err := requestWindow(req)
	if err != nil {
		e.logger.Warn("skipping request with bad temporal shape",
			"phone", hiker.Phone, "id", req.ID, "error", err)
		return models.Match{}, false
	}

	trips, err := expandDriverTrips(ride, e.now())
	if err != nil {
		e.logger.Warn("skipping ride with bad temporal shape",
			"phone", driver.Phone, "id", ride.ID, "error", err)
		return models.Match{}, false
	}

	best := models.Match{}
	found := false
	for _, trip := range trips {
		if trip.date != window.date {
			continue
		}
		if trip.timeMin < window.earliestMin || trip.timeMin > window.latestMin {
			continue
		}

		destOK, destDist := e.placeCompatible(req.Destination, trip.destination, ride.Route)
		if !destOK {
			continue
		}
		originOK, originDist := e.placeCompatible(req.Origin, trip.origin, ride.Route)
		if !originOK {
			continue
		}

		m := models.Match{
			DriverPhone:        driver.Phone,
			DriverName:         driver.DisplayName,
			Driver:             ride,
			HitchhikerPhone:    hiker.Phone,
			HitchhikerName:     hiker.DisplayName,
			Request:            req,
			Date:               trip.date,
			DriverTime:         trip.timeStr,
			TimeDeltaMinutes:   window.delta(trip.timeMin),
			CorridorDistanceKm: maxFloat(originDist, destDist),
			ReasonCode:         models.MatchReasonExact,
		}
		if m.CorridorDistanceKm > 0 {
			m.ReasonCode = models.MatchReasonCorridor
		}

		if !found || less(m, best) {
			best = m
			found = true
		}
	}
	return best, found
}

// placeCompatible checks one endpoint of the request against the matching
// endpoint of the driver trip: same settlement (or same normalized label), or
// on the route corridor when route data exists. Returns the corridor distance
// used, 0 for an exact match.
func (e *Engine) placeCompatible(hikerLabel, driverLabel string, route *models.RouteData) (bool, float64) {
	if gazetteer.Normalize(hikerLabel) == gazetteer.Normalize(driverLabel) {
		return true, 0
	}
	if e.gaz.SameSettlement(hikerLabel, driverLabel) {
		return true, 0
	}

	// Without route data matching degrades to name-exact mode.
	if route == nil || len(route.Polyline) == 0 {
		return false, 0
	}

	point, ok := e.gaz.LookupPoint(hikerLabel)
	if !ok {
		return false, 0
	}
	dist := geoPointToPolyline(point, route)
	if dist <= route.ThresholdKm {
		return true, dist
	}
	return false, 0
}

func rank(matches []models.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return less(matches[i], matches[j])
	})
}

// less orders matches best-first: smallest absolute time delta, then smallest
// corridor distance, then oldest driver listing.
func less(a, b models.Match) bool {
	da, db := absInt(a.TimeDeltaMinutes), absInt(b.TimeDeltaMinutes)
	if da != db {
		return da < db
	}
	if a.CorridorDistanceKm != b.CorridorDistanceKm {
		return a.CorridorDistanceKm < b.CorridorDistanceKm
	}
	return a.Driver.CreatedAt.Before(b.Driver.CreatedAt)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
