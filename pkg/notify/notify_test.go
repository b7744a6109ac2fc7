package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trempist/trempist/pkg/models"
	"github.com/trempist/trempist/pkg/store"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []PlannedMessage
}

func (r *recordingSink) SendText(_ context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, PlannedMessage{To: to, Body: body})
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func seedMatch(t *testing.T, s store.Store) models.Match {
	t.Helper()
	ctx := context.Background()

	ride, err := store.AddDriverRide(ctx, s, store.PrefixLive, "972520000001", models.DriverRide{
		Origin: "גברעם", Destination: "תל אביב",
		Days: []string{"monday"}, DepartureTime: "08:00",
	})
	require.NoError(t, err)

	req, err := store.AddHitchhikerRequest(ctx, s, store.PrefixLive, "972520000002", models.HitchhikerRequest{
		Origin: "גברעם", Destination: "תל אביב",
		TravelDate: "2026-08-03", DepartureTime: "08:10",
	})
	require.NoError(t, err)

	return models.Match{
		DriverPhone:     "972520000001",
		Driver:          ride,
		HitchhikerPhone: "972520000002",
		Request:         req,
		Date:            "2026-08-03",
		DriverTime:      "08:00",
	}
}

func TestEmitSendsBothParties(t *testing.T) {
	s := store.NewMemoryStore()
	sink := &recordingSink{}
	e := NewEmitter(s, sink)
	m := seedMatch(t, s)

	planned := e.Emit(context.Background(), store.PrefixLive, []models.Match{m}, true)

	require.Len(t, planned, 2)
	assert.Equal(t, 2, sink.count())
	assert.Equal(t, "972520000002", planned[0].To)
	assert.Equal(t, "972520000001", planned[1].To)
	// Each party gets the counterparty's number.
	assert.Contains(t, planned[0].Body, "972520000001")
	assert.Contains(t, planned[1].Body, "972520000002")
}

func TestEmitDeduplicates(t *testing.T) {
	s := store.NewMemoryStore()
	sink := &recordingSink{}
	e := NewEmitter(s, sink)
	m := seedMatch(t, s)
	ctx := context.Background()

	first := e.Emit(ctx, store.PrefixLive, []models.Match{m}, true)
	second := e.Emit(ctx, store.PrefixLive, []models.Match{m}, true)

	assert.Len(t, first, 2)
	assert.Empty(t, second)
	assert.Equal(t, 2, sink.count())

	t.Run("same pair on another date notifies again", func(t *testing.T) {
		m2 := m
		m2.Date = "2026-08-10"
		third := e.Emit(ctx, store.PrefixLive, []models.Match{m2}, true)
		assert.Len(t, third, 2)
	})

	t.Run("the sandbox namespace has its own dedupe set", func(t *testing.T) {
		// The same key under the other prefix is independent, but the
		// records live only under the live prefix so nothing is announced.
		planned := e.Emit(ctx, store.PrefixSandbox, []models.Match{m}, false)
		assert.Empty(t, planned)
	})
}

func TestEmitSandboxSuppressesSends(t *testing.T) {
	s := store.NewMemoryStore()
	sink := &recordingSink{}
	e := NewEmitter(s, sink)
	m := seedMatch(t, s)

	planned := e.Emit(context.Background(), store.PrefixLive, []models.Match{m}, false)

	require.Len(t, planned, 2)
	assert.Zero(t, sink.count(), "sandbox path must not call the chat sink")
}

func TestEmitSkipsDeletedRecords(t *testing.T) {
	s := store.NewMemoryStore()
	sink := &recordingSink{}
	e := NewEmitter(s, sink)
	m := seedMatch(t, s)
	ctx := context.Background()

	// The ride disappears between matching and emitting.
	require.NoError(t, store.RemoveRecord(ctx, s, store.PrefixLive, m.DriverPhone, m.Driver.ID, models.RoleDriver))

	planned := e.Emit(ctx, store.PrefixLive, []models.Match{m}, true)
	assert.Empty(t, planned)
	assert.Zero(t, sink.count())
}

func TestEmitNilSink(t *testing.T) {
	s := store.NewMemoryStore()
	e := NewEmitter(s, nil)
	m := seedMatch(t, s)

	// With no sink configured the messages are still planned and deduped.
	planned := e.Emit(context.Background(), store.PrefixLive, []models.Match{m}, true)
	assert.Len(t, planned, 2)
}
