package events

import (
	"context"
	"sync"

	"github.com/bridgecare/scheduling-core/internal/models"
)

// Sink receives domain events from the scheduling core. Implementations
// must never let delivery failures reach the caller; the core treats
// Record as fire-and-forget.
type Sink interface {
	Record(ctx context.Context, event models.DomainEvent)
}

// Collector buffers events in memory so the embedding application (or a
// test) can dispatch them itself after the operation returns.
type Collector struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends the event.
func (c *Collector) Record(_ context.Context, event models.DomainEvent) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

// Drain returns and clears the buffered events.
func (c *Collector) Drain() []models.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.events
	c.events = nil
	return drained
}

// Events returns a copy of the buffered events without clearing them.
func (c *Collector) Events() []models.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.DomainEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Discard drops every event. Useful as a constructor default.
type Discard struct{}

func (Discard) Record(context.Context, models.DomainEvent) {}
