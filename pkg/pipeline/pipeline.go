// Package pipeline resolves driving routes for persisted driver rides in the
// background: geocode, route, derive the corridor threshold, attach, and
// re-run matching. The user reply is never blocked on it.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trempist/trempist/pkg/gazetteer"
	"github.com/trempist/trempist/pkg/geo"
	"github.com/trempist/trempist/pkg/matching"
	"github.com/trempist/trempist/pkg/models"
	"github.com/trempist/trempist/pkg/notify"
	"github.com/trempist/trempist/pkg/routing"
	"github.com/trempist/trempist/pkg/store"
)

// Router is the slice of the routing client the pipeline needs.
type Router interface {
	Route(ctx context.Context, from, to geo.Point) (*routing.Result, error)
}

// Result reports the outcome of one pipeline run.
type Result struct {
	Prefix   store.Prefix
	Phone    string
	RideID   string
	Skipped  bool // another run for the same record was already in flight
	Attached bool
	Matches  int
	Err      error
}

// Planner runs route pipelines. At most one pipeline per
// (prefix, phone, ride) is in flight; a duplicate trigger is dropped since
// the input is deterministic per record.
type Planner struct {
	gaz     *gazetteer.Gazetteer
	router  Router
	store   store.Store
	engine  *matching.Engine
	emitter *notify.Emitter

	sem      chan struct{}
	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
	timeout  time.Duration
	logger   *slog.Logger
}

// NewPlanner creates a planner. maxInFlight bounds concurrent routing calls.
func NewPlanner(g *gazetteer.Gazetteer, r Router, s store.Store, e *matching.Engine, em *notify.Emitter, maxInFlight int) *Planner {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Planner{
		gaz:      g,
		router:   r,
		store:    s,
		engine:   e,
		emitter:  em,
		sem:      make(chan struct{}, maxInFlight),
		inFlight: make(map[string]bool),
		timeout:  45 * time.Second,
		logger:   slog.Default().With("component", "route-pipeline"),
	}
}

// Trigger spawns a pipeline for the ride and returns a buffered channel that
// receives the single Result when it completes. The spawned task detaches
// from the caller's context; a user delete does not cancel it (the final
// attach is a no-op when the record is gone).
func (p *Planner) Trigger(prefix store.Prefix, phone string, ride models.DriverRide, sendExternally bool) <-chan Result {
	results := make(chan Result, 1)
	key := string(prefix) + "|" + phone + "|" + ride.ID

	p.mu.Lock()
	if p.inFlight[key] {
		p.mu.Unlock()
		results <- Result{Prefix: prefix, Phone: phone, RideID: ride.ID, Skipped: true}
		return results
	}
	p.inFlight[key] = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inFlight, key)
			p.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		results <- p.run(ctx, prefix, phone, ride, sendExternally)
	}()
	return results
}

// Wait blocks until every in-flight pipeline has finished. Used on shutdown.
func (p *Planner) Wait() {
	p.wg.Wait()
}

func (p *Planner) run(ctx context.Context, prefix store.Prefix, phone string, ride models.DriverRide, sendExternally bool) Result {
	res := Result{Prefix: prefix, Phone: phone, RideID: ride.ID}
	log := p.logger.With("phone", phone, "id", ride.ID)

	origin, ok := p.gaz.LookupPoint(ride.Origin)
	if !ok {
		log.Info("origin not in gazetteer, leaving ride without route data",
			"stage", "geocode", "label", ride.Origin)
		return res
	}
	dest, ok := p.gaz.LookupPoint(ride.Destination)
	if !ok {
		log.Info("destination not in gazetteer, leaving ride without route data",
			"stage", "geocode", "label", ride.Destination)
		return res
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		res.Err = ctx.Err()
		return res
	}
	route, err := p.router.Route(ctx, origin, dest)
	<-p.sem
	if err != nil {
		log.Warn("route resolution failed, ride stays in name-exact mode",
			"stage", "route", "cause", err)
		res.Err = err
		return res
	}

	data := models.RouteData{
		Polyline:    route.Polyline,
		DistanceKm:  route.DistanceKm,
		ThresholdKm: geo.CorridorThresholdKm(route.DistanceKm),
	}

	attached, err := store.AttachRouteData(ctx, p.store, prefix, phone, ride.ID, data)
	if err != nil {
		log.Error("failed to attach route data", "stage", "attach", "cause", err)
		res.Err = err
		return res
	}
	if !attached {
		log.Info("ride deleted before route attach, dropping result", "stage", "attach")
		return res
	}
	res.Attached = true

	// Routes sometimes unlock matches that coarse matching missed. The
	// emitter's notified set keeps earlier matches from re-notifying.
	matches, err := p.engine.MatchRecord(ctx, prefix, phone, models.RoleDriver, ride.ID)
	if err != nil {
		log.Error("re-match after route attach failed", "stage", "rematch", "cause", err)
		res.Err = err
		return res
	}
	res.Matches = len(matches)
	p.emitter.Emit(ctx, prefix, matches, sendExternally)
	return res
}
