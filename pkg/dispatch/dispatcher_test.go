package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trempist/trempist/pkg/gazetteer"
	"github.com/trempist/trempist/pkg/geo"
	"github.com/trempist/trempist/pkg/llm"
	"github.com/trempist/trempist/pkg/matching"
	"github.com/trempist/trempist/pkg/notify"
	"github.com/trempist/trempist/pkg/pipeline"
	"github.com/trempist/trempist/pkg/routing"
	"github.com/trempist/trempist/pkg/store"
)

type noopRouter struct{}

func (noopRouter) Route(context.Context, geo.Point, geo.Point) (*routing.Result, error) {
	return nil, routing.ErrRouteUnavailable
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.MemoryStore) {
	t.Helper()
	g, err := gazetteer.Load()
	require.NoError(t, err)
	s := store.NewMemoryStore()
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	engine := matching.NewEngine(s, g, matching.WithNow(func() time.Time { return now }))
	emitter := notify.NewEmitter(s, nil)
	planner := pipeline.NewPlanner(g, noopRouter{}, s, engine, emitter, 1)
	return NewDispatcher(s, g, engine, emitter, planner), s
}

func call(name string, args any) *llm.ToolCall {
	raw, _ := json.Marshal(args)
	return &llm.ToolCall{Name: name, Arguments: raw}
}

func TestUpdateUserRecordsDriver(t *testing.T) {
	d, s := newTestDispatcher(t)
	ctx := context.Background()
	const phone = "972520000001"

	res := d.Execute(ctx, phone, call(ToolUpdateUserRecords, map[string]any{
		"role": "driver", "origin": "גברעם", "destination": "תל אביב",
		"days": []string{"monday"}, "departure_time": "08:00", "available_seats": 2,
	}), store.PrefixSandbox, false)

	assert.False(t, res.IsError)
	assert.Contains(t, res.Reply, "נרשמה נסיעה")
	assert.Contains(t, res.Reply, "גברעם")

	lists, err := store.ListRecords(ctx, s, store.PrefixSandbox, phone)
	require.NoError(t, err)
	require.Len(t, lists.DriverRides, 1)
	assert.Equal(t, 2, lists.DriverRides[0].AvailableSeats)

	t.Run("live namespace untouched", func(t *testing.T) {
		lists, err := store.ListRecords(ctx, s, store.PrefixLive, phone)
		require.NoError(t, err)
		assert.Empty(t, lists.DriverRides)
	})

	t.Run("identical re-add reports the duplicate", func(t *testing.T) {
		res := d.Execute(ctx, phone, call(ToolUpdateUserRecords, map[string]any{
			"role": "driver", "origin": "גברעם", "destination": "תל-אביב",
			"days": []string{"monday"}, "departure_time": "08:00",
		}), store.PrefixSandbox, false)
		assert.False(t, res.IsError)
		assert.Contains(t, res.Reply, "כבר רשומה")

		lists, err := store.ListRecords(ctx, s, store.PrefixSandbox, phone)
		require.NoError(t, err)
		assert.Len(t, lists.DriverRides, 1)
	})
}

func TestUpdateUserRecordsUnknownSettlement(t *testing.T) {
	d, s := newTestDispatcher(t)
	ctx := context.Background()

	res := d.Execute(ctx, "972520000002", call(ToolUpdateUserRecords, map[string]any{
		"role": "driver", "origin": "כפר לא מוכר", "destination": "תל אביב",
		"travel_date": "2026-08-05", "departure_time": "09:00",
	}), store.PrefixSandbox, false)

	assert.False(t, res.IsError)
	assert.Contains(t, res.Reply, "לא הצלחתי לזהות")
	assert.Contains(t, res.Reply, "כפר לא מוכר")

	// The ride is persisted anyway; name-exact matching still works.
	lists, err := store.ListRecords(ctx, s, store.PrefixSandbox, "972520000002")
	require.NoError(t, err)
	assert.Len(t, lists.DriverRides, 1)
}

func TestUpdateUserRecordsMatchInline(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	res := d.Execute(ctx, "972520000003", call(ToolUpdateUserRecords, map[string]any{
		"role": "driver", "origin": "גברעם", "destination": "תל אביב",
		"days": []string{"monday"}, "departure_time": "08:00",
	}), store.PrefixSandbox, false)
	require.False(t, res.IsError)

	res = d.Execute(ctx, "972520000004", call(ToolUpdateUserRecords, map[string]any{
		"role": "hitchhiker", "origin": "גברעם", "destination": "תל אביב",
		"travel_date": "2026-08-03", "departure_time": "08:10", "flexibility_minutes": 30,
	}), store.PrefixSandbox, false)

	assert.False(t, res.IsError)
	require.Len(t, res.Matches, 1)
	assert.Contains(t, res.Reply, "נמצאה התאמה אחת")
	// The sandbox path inlines the match details, counterparty number included.
	assert.Contains(t, res.Reply, "972520000003")
	require.Len(t, res.Planned, 2)
}

func TestUpdateUserRecordsPatch(t *testing.T) {
	d, s := newTestDispatcher(t)
	ctx := context.Background()
	const phone = "972520000005"

	res := d.Execute(ctx, phone, call(ToolUpdateUserRecords, map[string]any{
		"role": "driver", "origin": "חיפה", "destination": "תל אביב",
		"travel_date": "2026-08-06", "departure_time": "07:00",
	}), store.PrefixSandbox, false)
	require.False(t, res.IsError)

	lists, err := store.ListRecords(ctx, s, store.PrefixSandbox, phone)
	require.NoError(t, err)
	rideID := lists.DriverRides[0].ID

	res = d.Execute(ctx, phone, call(ToolUpdateUserRecords, map[string]any{
		"role": "driver", "origin": "חיפה", "destination": "תל אביב",
		"travel_date": "2026-08-06", "departure_time": "07:30",
		"record_id": rideID, "notes": "יציאה מהדלק",
	}), store.PrefixSandbox, false)
	require.False(t, res.IsError)

	lists, err = store.ListRecords(ctx, s, store.PrefixSandbox, phone)
	require.NoError(t, err)
	require.Len(t, lists.DriverRides, 1, "patch must not create a second ride")
	assert.Equal(t, "07:30", lists.DriverRides[0].DepartureTime)
	assert.Equal(t, "יציאה מהדלק", lists.DriverRides[0].Notes)
}

func TestViewAndDeleteRoundTrip(t *testing.T) {
	d, s := newTestDispatcher(t)
	ctx := context.Background()
	const phone = "972520000006"

	t.Run("empty view", func(t *testing.T) {
		res := d.Execute(ctx, phone, call(ToolViewUserRecords, nil), store.PrefixSandbox, false)
		assert.False(t, res.IsError)
		assert.Contains(t, res.Reply, "אין לך עדיין רשומות")
	})

	res := d.Execute(ctx, phone, call(ToolUpdateUserRecords, map[string]any{
		"role": "hitchhiker", "origin": "ערד", "destination": "באר שבע",
		"travel_date": "2026-08-07", "earliest": "08:00", "latest": "10:00",
	}), store.PrefixSandbox, false)
	require.False(t, res.IsError)

	t.Run("add then view lists it", func(t *testing.T) {
		res := d.Execute(ctx, phone, call(ToolViewUserRecords, nil), store.PrefixSandbox, false)
		assert.Contains(t, res.Reply, "ערד")
		assert.Contains(t, res.Reply, "בין 08:00 ל-10:00")
	})

	lists, err := store.ListRecords(ctx, s, store.PrefixSandbox, phone)
	require.NoError(t, err)
	reqID := lists.HitchhikerRequests[0].ID

	t.Run("delete by short id then view no longer lists it", func(t *testing.T) {
		res := d.Execute(ctx, phone, call(ToolDeleteUserRecord, map[string]any{
			"role": "hitchhiker", "record_id": reqID[:8],
		}), store.PrefixSandbox, false)
		assert.False(t, res.IsError)
		assert.Contains(t, res.Reply, "נמחק")

		res = d.Execute(ctx, phone, call(ToolViewUserRecords, nil), store.PrefixSandbox, false)
		assert.Contains(t, res.Reply, "אין לך עדיין רשומות")
	})

	t.Run("deleting again is a friendly miss", func(t *testing.T) {
		res := d.Execute(ctx, phone, call(ToolDeleteUserRecord, map[string]any{
			"role": "hitchhiker", "record_id": reqID,
		}), store.PrefixSandbox, false)
		assert.False(t, res.IsError)
		assert.Contains(t, res.Reply, "לא מצאתי")
	})
}

func TestDeleteAllUserRecords(t *testing.T) {
	d, s := newTestDispatcher(t)
	ctx := context.Background()
	const phone = "972520000007"

	for _, dest := range []string{"תל אביב", "ירושלים"} {
		res := d.Execute(ctx, phone, call(ToolUpdateUserRecords, map[string]any{
			"role": "driver", "origin": "חיפה", "destination": dest,
			"travel_date": "2026-08-06", "departure_time": "07:00",
		}), store.PrefixSandbox, false)
		require.False(t, res.IsError)
	}

	res := d.Execute(ctx, phone, call(ToolDeleteAllUserRecords, nil), store.PrefixSandbox, false)
	assert.False(t, res.IsError)

	lists, err := store.ListRecords(ctx, s, store.PrefixSandbox, phone)
	require.NoError(t, err)
	assert.Empty(t, lists.DriverRides)
}

func TestShowHelp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res := d.Execute(context.Background(), "972520000008", call(ToolShowHelp, nil), store.PrefixSandbox, false)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Reply, "טרמפים")
}

func TestSchemaViolations(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	const phone = "972520000009"

	cases := map[string]*llm.ToolCall{
		"unknown tool": call("drop_all_tables", nil),
		"missing role": call(ToolUpdateUserRecords, map[string]any{
			"origin": "א", "destination": "ב",
		}),
		"bad time": call(ToolUpdateUserRecords, map[string]any{
			"role": "driver", "origin": "א", "destination": "ב",
			"travel_date": "2026-08-06", "departure_time": "8 בבוקר",
		}),
		"driver without temporal shape": call(ToolUpdateUserRecords, map[string]any{
			"role": "driver", "origin": "א", "destination": "ב", "departure_time": "08:00",
		}),
		"hitchhiker with half a window": call(ToolUpdateUserRecords, map[string]any{
			"role": "hitchhiker", "origin": "א", "destination": "ב",
			"travel_date": "2026-08-06", "earliest": "08:00",
		}),
		"unknown argument field": {
			Name:      ToolUpdateUserRecords,
			Arguments: json.RawMessage(`{"role":"driver","origin":"א","destination":"ב","travel_date":"2026-08-06","departure_time":"08:00","price":20}`),
		},
		"bad delete role": call(ToolDeleteUserRecord, map[string]any{
			"role": "passenger", "record_id": "whatever1",
		}),
	}

	for name, toolCall := range cases {
		t.Run(name, func(t *testing.T) {
			res := d.Execute(ctx, phone, toolCall, store.PrefixSandbox, false)
			assert.True(t, res.IsError)
			assert.NotEmpty(t, res.ErrorMsg, "the reason is carried in ErrorMsg")
			assert.NotEmpty(t, res.Reply, "the user still gets a reply")
			assert.NotContains(t, res.Reply, "schema", "internal wording must not leak")
		})
	}
}
