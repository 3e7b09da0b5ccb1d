package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryOutbox keeps outbox records in process. It satisfies both Notifier
// and the relay's Outbox.
type MemoryOutbox struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (o *MemoryOutbox) Emit(_ context.Context, event Event) error {
	rec, err := newRecord(event)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
	return nil
}

func (o *MemoryOutbox) ListUnpublished(_ context.Context, limit int) ([]Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Record
	for _, rec := range o.records {
		if rec.PublishedAt != nil {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *MemoryOutbox) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range o.records {
		if want[o.records[i].ID] {
			published := at
			o.records[i].PublishedAt = &published
		}
	}
	return nil
}

// Events decodes every record emitted so far, in order.
func (o *MemoryOutbox) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Event, 0, len(o.records))
	for _, rec := range o.records {
		var e Event
		if err := json.Unmarshal(rec.Payload, &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Names lists emitted event names in order.
func (o *MemoryOutbox) Names() []string {
	events := o.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Name
	}
	return out
}

func (o *MemoryOutbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = nil
}
