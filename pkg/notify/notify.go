// Package notify formats and delivers match notifications. Delivery is
// best-effort and idempotent: the same driver/hitchhiker pair on the same
// date is never announced twice within a namespace.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trempist/trempist/pkg/models"
	"github.com/trempist/trempist/pkg/store"
)

// ChatSink pushes a plain-text message to a phone number. Unicode and RTL
// bodies pass through untouched.
type ChatSink interface {
	SendText(ctx context.Context, to, body string) error
}

// notifiedSet tracks announced matches per namespace. Inserts are idempotent.
type notifiedSet struct {
	mu   sync.Mutex
	seen map[store.Prefix]map[string]bool
}

func newNotifiedSet() *notifiedSet {
	return &notifiedSet{seen: make(map[store.Prefix]map[string]bool)}
}

// markIfNew records the key and reports whether it was unseen.
func (n *notifiedSet) markIfNew(prefix store.Prefix, key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, ok := n.seen[prefix]
	if !ok {
		ns = make(map[string]bool)
		n.seen[prefix] = ns
	}
	if ns[key] {
		return false
	}
	ns[key] = true
	return true
}

// Emitter delivers match notifications through a chat sink.
type Emitter struct {
	store    store.Store
	sink     ChatSink
	notified *notifiedSet
	logger   *slog.Logger
}

// NewEmitter creates an emitter. sink may be nil, in which case external
// sends are skipped even when requested.
func NewEmitter(s store.Store, sink ChatSink) *Emitter {
	return &Emitter{
		store:    s,
		sink:     sink,
		notified: newNotifiedSet(),
		logger:   slog.Default().With("component", "notify"),
	}
}

// PlannedMessage is one message the emitter intends to (or did) send.
type PlannedMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Emit processes the matches for a newly persisted or refreshed record. Each
// previously unseen match yields two messages, one per party. When
// sendExternally is false the messages are only returned; no sink call is
// made. Records deleted since the match was computed are skipped.
func (e *Emitter) Emit(ctx context.Context, prefix store.Prefix, matches []models.Match, sendExternally bool) []PlannedMessage {
	var planned []PlannedMessage
	for _, m := range matches {
		if !e.recordsStillExist(ctx, prefix, &m) {
			continue
		}
		if !e.notified.markIfNew(prefix, m.Key()) {
			continue
		}

		toHiker := PlannedMessage{To: m.HitchhikerPhone, Body: FormatForHitchhiker(&m)}
		toDriver := PlannedMessage{To: m.DriverPhone, Body: FormatForDriver(&m)}
		planned = append(planned, toHiker, toDriver)

		if !sendExternally || e.sink == nil {
			continue
		}
		for _, msg := range []PlannedMessage{toHiker, toDriver} {
			if err := e.sink.SendText(ctx, msg.To, msg.Body); err != nil {
				e.logger.Error("failed to deliver match notification",
					"to", msg.To, "match", m.Key(), "error", err)
			}
		}
	}
	return planned
}

// recordsStillExist re-checks both sides against the store right before
// announcing. A record deleted mid-match must not be notified.
func (e *Emitter) recordsStillExist(ctx context.Context, prefix store.Prefix, m *models.Match) bool {
	driver, err := e.store.GetUser(ctx, prefix, m.DriverPhone)
	if err != nil || driver.DriverRideByID(m.Driver.ID) == nil {
		return false
	}
	hiker, err := e.store.GetUser(ctx, prefix, m.HitchhikerPhone)
	if err != nil || hiker.HitchhikerRequestByID(m.Request.ID) == nil {
		return false
	}
	return true
}

// FormatForHitchhiker renders the driver's details for the hitchhiker.
func FormatForHitchhiker(m *models.Match) string {
	name := m.DriverName
	if name == "" {
		name = "נהג"
	}
	return fmt.Sprintf(
		"נמצאה התאמה! 🚗\n%s נוסע/ת מ%s ל%s בתאריך %s בשעה %s.\nאפשר ליצור קשר בטלפון %s",
		name, m.Driver.Origin, m.Driver.Destination, m.Date, m.DriverTime, m.DriverPhone)
}

// FormatForDriver renders the hitchhiker's details for the driver.
func FormatForDriver(m *models.Match) string {
	name := m.HitchhikerName
	if name == "" {
		name = "טרמפיסט/ית"
	}
	return fmt.Sprintf(
		"נמצאה התאמה! 🙋\n%s מחפש/ת טרמפ מ%s ל%s בתאריך %s סביב השעה %s.\nאפשר ליצור קשר בטלפון %s",
		name, m.Request.Origin, m.Request.Destination, m.Date, m.DriverTime, m.HitchhikerPhone)
}
