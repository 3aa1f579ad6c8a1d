package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	appoutbox "rentme-reservations/internal/app/outbox"
)

type outboxEntry struct {
	record    appoutbox.EventRecord
	sent      bool
	claimed   bool
	attempts  int
	nextTry   time.Time
	lastError string
}

// Outbox keeps events in memory until the relay marks them sent.
type Outbox struct {
	mu      sync.Mutex
	entries map[string]*outboxEntry
}

func NewOutbox() *Outbox {
	return &Outbox{entries: make(map[string]*outboxEntry)}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[record.ID] = &outboxEntry{record: record, nextTry: record.OccurredAt}
	return nil
}

// Claim returns the oldest due record, or nil when nothing is due.
func (o *Outbox) Claim(ctx context.Context, workerID string, now time.Time) (*appoutbox.Pending, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var due []*outboxEntry
	for _, e := range o.entries {
		if !e.sent && !e.claimed && !e.nextTry.After(now) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].record.OccurredAt.Before(due[j].record.OccurredAt) })
	e := due[0]
	e.claimed = true
	return &appoutbox.Pending{EventRecord: e.record, Attempts: e.attempts}, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	if !ok {
		return appoutbox.ErrNotFound
	}
	e.sent, e.claimed = true, false
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	if !ok {
		return appoutbox.ErrNotFound
	}
	e.claimed = false
	e.attempts++
	e.nextTry = next
	e.lastError = errMsg
	return nil
}

// Records returns every added record in occurrence order.
func (o *Outbox) Records() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out
}

var (
	_ appoutbox.Outbox = (*Outbox)(nil)
	_ appoutbox.Relay  = (*Outbox)(nil)
)
