package service

import (
	"log/slog"
	"sync"
)

// Resource names the part of the viewer state an Event is about.
type Resource string

const (
	ResourceLayers   Resource = "layers"   // catalog entries and their visibility/opacity
	ResourcePosition Resource = "position" // device location fixes and errors
	ResourceTiles    Resource = "tiles"    // local tile sets
)

// subscriberBuffer is how many events a subscriber may fall behind before
// further events to it are dropped.
const subscriberBuffer = 16

// Event is one change to viewer state. Action is "created", "updated",
// "deleted", "toggled" or "opacity" for layers, "moved" or "failed" for the
// position and "created" for tiles.
type Event struct {
	Resource Resource
	Action   string
	ID       string
}

// EventBus fans events out to the open panel streams and the tile registry.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a bus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish delivers e to every subscriber with room for it.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("event dropped for slow subscriber", "resource", e.Resource, "action", e.Action, "id", e.ID)
		}
	}
}

// Subscribe returns a channel receiving every later event.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it. Unknown or already
// removed channels are ignored.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}
