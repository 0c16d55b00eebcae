// Package events provides an in-process broadcast bus for entity mutation
// signals. A mutator (for example a create command) publishes an Event after
// a successful write; subscribers interested in that entity type react by
// reloading their own data. Publisher and subscriber never hold references
// to each other.
package events

import (
	"sync"
)

// Event describes a completed mutation on a server-side entity.
type Event struct {
	EntityType   string // "incident", "problem", "change", ...
	EntityID     string // server-assigned id, may be empty
	TicketNumber string // human-facing ticket number, may be empty
}

// Bus is a broadcast channel for Events. The zero value is not usable;
// construct with NewBus.
type Bus struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	entityType string // empty subscribes to all types
	ch         chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers interest in events for the given entity type.
// An empty entityType receives every event. The returned cancel function
// removes the subscription and closes the channel; it is safe to call more
// than once.
func (b *Bus) Subscribe(entityType string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &subscriber{
		entityType: entityType,
		ch:         make(chan Event, 16),
	}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every matching subscriber. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event rather
// than stalling the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.entityType != "" && sub.entityType != ev.EntityType {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
