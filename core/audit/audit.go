// Package audit keeps a change log of resource writes. Entries are
// buffered in memory and written to SQLite in batches.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/crudkit/core/events"
	"github.com/artpar/crudkit/core/record"
)

// Entry is a single recorded change.
type Entry struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Event     string    `json:"event"`     // album.created, album.published
	Resource  string    `json:"resource"`
	Operation string    `json:"operation"` // create, update, destroy
	RecordKey string    `json:"record_key,omitempty"`
	Changed   []string  `json:"changed,omitempty"`
}

// FromEvent converts a bus event to an entry.
func FromEvent(e events.Event) Entry {
	entry := Entry{
		At:        e.At,
		Event:     e.Name,
		Resource:  e.Resource,
		Operation: e.Operation,
		Changed:   e.Changed,
	}
	if id, ok := e.Record[record.IDField]; ok && id != nil {
		entry.RecordKey = fmt.Sprint(id)
	}
	return entry
}

// QueryOptions filters entries. Zero values match everything.
type QueryOptions struct {
	Resource  string
	Operation string
	RecordKey string
	Since     time.Time
	Until     time.Time

	Limit  int // default 100
	Offset int
}

// Count is the number of entries for one resource and operation.
type Count struct {
	Resource  string `json:"resource"`
	Operation string `json:"operation"`
	Total     int64  `json:"total"`
}

// Log records and queries change entries.
type Log interface {
	Record(entry Entry)
	Flush(ctx context.Context) error
	Query(ctx context.Context, opts QueryOptions) ([]Entry, int64, error)
	Counts(ctx context.Context, since time.Time) ([]Count, error)
	Delete(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Subscribe records every event published on bus into log. The returned
// function stops recording.
func Subscribe(bus *events.Bus, log Log) (unsubscribe func()) {
	return bus.Subscribe("*", func(_ context.Context, e events.Event) error {
		log.Record(FromEvent(e))
		return nil
	})
}
