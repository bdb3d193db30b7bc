// Package events publishes record lifecycle events. The runtime publishes
// "<resource>.created", "<resource>.updated" and "<resource>.destroyed"
// after a mutation commits, and hooks may emit events of their own.
package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Lifecycle event suffixes.
const (
	Created   = "created"
	Updated   = "updated"
	Destroyed = "destroyed"
)

// Name returns the event name for a resource and suffix.
func Name(resource, suffix string) string {
	return resource + "." + suffix
}

// Event is a published event.
type Event struct {
	// Name is the event name (e.g., "album.created").
	Name string

	// Resource that emitted the event.
	Resource string

	// Operation that triggered the event.
	Operation string

	// Record holds the record's attributes after the operation.
	Record map[string]any

	// Changed lists the attributes the operation assigned.
	Changed []string

	At time.Time
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	next     uint64
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewBus creates an event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler and returns a function that removes it.
// Patterns:
//   - "album.created" - exact match
//   - "album.*" - every album event
//   - "*" - every event
func (b *Bus) Subscribe(pattern string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.handlers[pattern] = append(b.handlers[pattern], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[pattern]
		for i, s := range subs {
			if s.id == id {
				b.handlers[pattern] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// matching returns the handlers for name: exact first, then the resource
// wildcard, then the global wildcard.
func (b *Bus) matching(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	patterns := []string{name}
	if prefix, _, ok := strings.Cut(name, "."); ok {
		patterns = append(patterns, prefix+".*")
	}
	patterns = append(patterns, "*")

	var out []Handler
	for _, p := range patterns {
		for _, s := range b.handlers[p] {
			out = append(out, s.handler)
		}
	}
	return out
}

// Publish calls every matching handler in order. Handler errors are
// logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.logger.Debug().
		Str("event", event.Name).
		Str("resource", event.Resource).
		Str("operation", event.Operation).
		Msg("event emitted")

	for _, handler := range b.matching(event.Name) {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// PublishAsync publishes in a new goroutine. Wait blocks until every
// asynchronous publish has finished.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Publish(context.WithoutCancel(ctx), event)
	}()
}

// Wait blocks until asynchronous publishes complete.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// HasSubscribers reports whether any handler matches name.
func (b *Bus) HasSubscribers(name string) bool {
	return len(b.matching(name)) > 0
}
