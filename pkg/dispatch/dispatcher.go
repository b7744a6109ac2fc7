// Package dispatch executes the closed set of tool calls the LLM may emit.
// Every handler threads the collection prefix and the external-send flag;
// that pair is the spine of the live/sandbox duality.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/trempist/trempist/pkg/gazetteer"
	"github.com/trempist/trempist/pkg/llm"
	"github.com/trempist/trempist/pkg/matching"
	"github.com/trempist/trempist/pkg/models"
	"github.com/trempist/trempist/pkg/notify"
	"github.com/trempist/trempist/pkg/pipeline"
	"github.com/trempist/trempist/pkg/store"
)

// Result is what a tool execution hands back to the orchestrator. IsError
// marks a schema violation or internal failure; Reply is user-facing
// otherwise.
type Result struct {
	Reply    string
	IsError  bool
	ErrorMsg string // internal detail, never shown to the user
	Records  store.RecordLists
	Matches  []models.Match
	Planned  []notify.PlannedMessage
}

// Dispatcher validates and runs tool calls.
type Dispatcher struct {
	store   store.Store
	gaz     *gazetteer.Gazetteer
	engine  *matching.Engine
	emitter *notify.Emitter
	planner *pipeline.Planner
	logger  *slog.Logger
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(s store.Store, g *gazetteer.Gazetteer, e *matching.Engine, em *notify.Emitter, p *pipeline.Planner) *Dispatcher {
	return &Dispatcher{
		store:   s,
		gaz:     g,
		engine:  e,
		emitter: em,
		planner: p,
		logger:  slog.Default().With("component", "dispatch"),
	}
}

// Execute runs a single tool call for phone under prefix. Unknown tools and
// schema violations come back with IsError set and the detail in ErrorMsg;
// the user only gets a generic reply, and the detail is not sent back to the
// model.
func (d *Dispatcher) Execute(ctx context.Context, phone string, call *llm.ToolCall, prefix store.Prefix, sendExternally bool) Result {
	var (
		res Result
		err error
	)
	switch call.Name {
	case ToolUpdateUserRecords:
		res, err = d.updateUserRecords(ctx, phone, call.Arguments, prefix, sendExternally)
	case ToolViewUserRecords:
		res, err = d.viewUserRecords(ctx, phone, prefix)
	case ToolDeleteUserRecord:
		res, err = d.deleteUserRecord(ctx, phone, call.Arguments, prefix)
	case ToolDeleteAllUserRecords:
		res, err = d.deleteAllUserRecords(ctx, phone, prefix)
	case ToolShowHelp:
		res = Result{Reply: helpText}
	default:
		err = schemaErrf(call.Name, "unknown tool")
	}

	if err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			d.logger.Warn("rejected tool call", "phone", phone, "tool", call.Name, "cause", schemaErr.Detail)
			return Result{IsError: true, ErrorMsg: schemaErr.Error(), Reply: invalidRequestReply}
		}
		d.logger.Error("tool execution failed", "phone", phone, "tool", call.Name, "error", err)
		return Result{IsError: true, ErrorMsg: err.Error(), Reply: systemErrorReply}
	}
	return res
}

func (d *Dispatcher) updateUserRecords(ctx context.Context, phone string, raw json.RawMessage, prefix store.Prefix, sendExternally bool) (Result, error) {
	var args updateRecordArgs
	if err := decodeArgs(ToolUpdateUserRecords, raw, &args); err != nil {
		return Result{}, err
	}
	if err := args.validate(); err != nil {
		return Result{}, err
	}

	role, _ := models.ParseRole(args.Role)
	warnings := d.gazetteerWarnings(args.Origin, args.Destination)

	switch role {
	case models.RoleDriver:
		return d.upsertDriverRide(ctx, phone, &args, prefix, sendExternally, warnings)
	default:
		return d.upsertHitchhikerRequest(ctx, phone, &args, prefix, sendExternally, warnings)
	}
}

func (d *Dispatcher) upsertDriverRide(ctx context.Context, phone string, args *updateRecordArgs, prefix store.Prefix, sendExternally bool, warnings string) (Result, error) {
	var (
		ride models.DriverRide
		err  error
	)
	if args.RecordID != "" {
		ride, err = store.UpdateDriverRide(ctx, d.store, prefix, phone, args.RecordID, func(r *models.DriverRide) {
			r.Origin = args.Origin
			r.Destination = args.Destination
			r.Days = args.Days
			r.DepartureTime = args.DepartureTime
			r.ReturnTime = args.ReturnTime
			r.TravelDate = args.TravelDate
			if args.AvailableSeats > 0 {
				r.AvailableSeats = args.AvailableSeats
			}
			if args.Notes != "" {
				r.Notes = args.Notes
			}
		})
	} else {
		ride, err = store.AddDriverRide(ctx, d.store, prefix, phone, models.DriverRide{
			Origin:         args.Origin,
			Destination:    args.Destination,
			Days:           args.Days,
			DepartureTime:  args.DepartureTime,
			ReturnTime:     args.ReturnTime,
			TravelDate:     args.TravelDate,
			AvailableSeats: args.AvailableSeats,
			Notes:          args.Notes,
		})
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			return Result{Reply: duplicateRideReply}, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, schemaErrf(ToolUpdateUserRecords, "record %s not found", args.RecordID)
		}
		return Result{}, fmt.Errorf("failed to persist driver ride: %w", err)
	}

	user, err := d.store.GetUser(ctx, prefix, phone)
	if err != nil {
		return Result{}, fmt.Errorf("failed to reload user: %w", err)
	}

	matches, err := d.engine.MatchDriverRide(ctx, prefix, user, ride)
	if err != nil {
		return Result{}, fmt.Errorf("failed to match ride: %w", err)
	}
	planned := d.emitter.Emit(ctx, prefix, matches, sendExternally)

	// The route resolves in the background so the reply is not blocked on
	// the external routing engine.
	d.planner.Trigger(prefix, phone, ride, sendExternally)

	reply := formatRideSaved(&ride, warnings, user, matches, sendExternally)
	return Result{
		Reply:   reply,
		Records: store.RecordLists{DriverRides: user.DriverRides, HitchhikerRequests: user.HitchhikerRequests},
		Matches: matches,
		Planned: planned,
	}, nil
}

func (d *Dispatcher) upsertHitchhikerRequest(ctx context.Context, phone string, args *updateRecordArgs, prefix store.Prefix, sendExternally bool, warnings string) (Result, error) {
	var (
		req models.HitchhikerRequest
		err error
	)
	if args.RecordID != "" {
		req, err = store.UpdateHitchhikerRequest(ctx, d.store, prefix, phone, args.RecordID, func(r *models.HitchhikerRequest) {
			r.Origin = args.Origin
			r.Destination = args.Destination
			r.TravelDate = args.TravelDate
			r.DepartureTime = args.DepartureTime
			r.Earliest = args.Earliest
			r.Latest = args.Latest
			if args.FlexibilityMinutes > 0 {
				r.FlexibilityMinutes = args.FlexibilityMinutes
			}
			if args.Notes != "" {
				r.Notes = args.Notes
			}
		})
	} else {
		req, err = store.AddHitchhikerRequest(ctx, d.store, prefix, phone, models.HitchhikerRequest{
			Origin:             args.Origin,
			Destination:        args.Destination,
			TravelDate:         args.TravelDate,
			DepartureTime:      args.DepartureTime,
			Earliest:           args.Earliest,
			Latest:             args.Latest,
			FlexibilityMinutes: args.FlexibilityMinutes,
			Notes:              args.Notes,
		})
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			return Result{Reply: duplicateRequestReply}, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, schemaErrf(ToolUpdateUserRecords, "record %s not found", args.RecordID)
		}
		return Result{}, fmt.Errorf("failed to persist hitchhiker request: %w", err)
	}

	user, err := d.store.GetUser(ctx, prefix, phone)
	if err != nil {
		return Result{}, fmt.Errorf("failed to reload user: %w", err)
	}

	matches, err := d.engine.MatchHitchhikerRequest(ctx, prefix, user, req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to match request: %w", err)
	}
	planned := d.emitter.Emit(ctx, prefix, matches, sendExternally)

	reply := formatRequestSaved(&req, warnings, user, matches, sendExternally)
	return Result{
		Reply:   reply,
		Records: store.RecordLists{DriverRides: user.DriverRides, HitchhikerRequests: user.HitchhikerRequests},
		Matches: matches,
		Planned: planned,
	}, nil
}

func (d *Dispatcher) viewUserRecords(ctx context.Context, phone string, prefix store.Prefix) (Result, error) {
	lists, err := store.ListRecords(ctx, d.store, prefix, phone)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list records: %w", err)
	}
	return Result{Reply: formatRecordLists(lists), Records: lists}, nil
}

func (d *Dispatcher) deleteUserRecord(ctx context.Context, phone string, raw json.RawMessage, prefix store.Prefix) (Result, error) {
	var args deleteRecordArgs
	if err := decodeArgs(ToolDeleteUserRecord, raw, &args); err != nil {
		return Result{}, err
	}
	if err := args.validate(); err != nil {
		return Result{}, err
	}

	role, _ := models.ParseRole(args.Role)
	if err := store.RemoveRecord(ctx, d.store, prefix, phone, args.RecordID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{Reply: recordNotFoundReply}, nil
		}
		return Result{}, fmt.Errorf("failed to delete record: %w", err)
	}
	return Result{Reply: recordDeletedReply}, nil
}

func (d *Dispatcher) deleteAllUserRecords(ctx context.Context, phone string, prefix store.Prefix) (Result, error) {
	if err := store.RemoveAllRecords(ctx, d.store, prefix, phone); err != nil {
		return Result{}, fmt.Errorf("failed to delete records: %w", err)
	}
	return Result{Reply: allRecordsDeletedReply}, nil
}

// gazetteerWarnings builds the unknown-settlement notes shown alongside a
// save confirmation. Unknown labels do not block the save; matching degrades
// to name-exact mode for them.
func (d *Dispatcher) gazetteerWarnings(labels ...string) string {
	var unknown []string
	for _, label := range labels {
		if d.gaz.Lookup(label) == nil {
			unknown = append(unknown, label)
		}
	}
	if len(unknown) == 0 {
		return ""
	}
	msg := ""
	for _, label := range unknown {
		msg += fmt.Sprintf("\n⚠️ לא הצלחתי לזהות את \"%s\" — נסו שם של יישוב מוכר בסביבה.", label)
	}
	return msg
}
