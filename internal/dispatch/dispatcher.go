// Package dispatch deduplicates inbound events and routes them to
// registered per-type handlers.
package dispatch

import (
	"log"
	"sync"

	"lessonsync/pkg/types"
)

// DefaultDedupCapacity bounds the recently-seen event id set.
// FUNCTIONAL DISCOVERY: 100 ids covers well over a minute of classroom
// traffic while keeping memory constant
const DefaultDedupCapacity = 100

// Handler processes one event. Handlers run in registration order and are
// isolated from each other: a panic in one never reaches the next.
type Handler func(event *types.Event)

type handlerEntry struct {
	id int64
	fn Handler
}

// Dispatcher routes events by type with bounded dedup by event id.
// ARCHITECTURAL DISCOVERY: Single coordination point for all inbound flow
// keeps dedup state consistent between the push channel and local synthesis
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]handlerEntry
	nextID   int64

	// FIFO eviction once the cap is reached
	seen     map[string]struct{}
	seenFIFO []string
	capacity int
}

// NewDispatcher creates a dispatcher with the given dedup capacity.
// A non-positive capacity falls back to the default.
func NewDispatcher(capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Dispatcher{
		handlers: make(map[string][]handlerEntry),
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// Subscribe registers a handler for an event type. Use types.EventAny to
// receive every event. The returned function removes the subscription and
// is safe to call more than once.
func (d *Dispatcher) Subscribe(eventType string, fn Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers[eventType] = append(d.handlers[eventType], handlerEntry{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		entries := d.handlers[eventType]
		for i, e := range entries {
			if e.id == id {
				d.handlers[eventType] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// Dispatch delivers an event to all typed handlers plus wildcard handlers.
// A repeated event id within the bounded recent set is dropped silently.
func (d *Dispatcher) Dispatch(event *types.Event) {
	if event == nil {
		return
	}

	d.mu.Lock()
	if _, dup := d.seen[event.EventID]; dup {
		d.mu.Unlock()
		return
	}
	d.remember(event.EventID)

	// TECHNICAL DISCOVERY: Handlers are invoked outside the lock so a
	// handler may subscribe or unsubscribe without deadlocking dispatch
	entries := make([]handlerEntry, 0, len(d.handlers[event.Type])+len(d.handlers[types.EventAny]))
	entries = append(entries, d.handlers[event.Type]...)
	entries = append(entries, d.handlers[types.EventAny]...)
	d.mu.Unlock()

	for _, e := range entries {
		d.invoke(e.fn, event)
	}
}

// Seen reports whether an event id is currently in the dedup window.
func (d *Dispatcher) Seen(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[eventID]
	return ok
}

// remember records an id, evicting oldest-first at capacity. Caller holds mu.
func (d *Dispatcher) remember(eventID string) {
	if len(d.seenFIFO) >= d.capacity {
		oldest := d.seenFIFO[0]
		d.seenFIFO = d.seenFIFO[1:]
		delete(d.seen, oldest)
	}
	d.seen[eventID] = struct{}{}
	d.seenFIFO = append(d.seenFIFO, eventID)
}

// invoke runs one handler with panic isolation.
// FUNCTIONAL DISCOVERY: Event processing continues despite individual
// handler failures - one bad subscriber must not corrupt future dispatch
func (d *Dispatcher) invoke(fn Handler, event *types.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Event handler panicked: type=%s id=%s panic=%v", event.Type, event.EventID, r)
		}
	}()
	fn(event)
}
