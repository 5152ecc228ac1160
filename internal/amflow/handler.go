package amflow

import (
	"sync"

	"github.com/roach88/amflow/internal/playlog"
)

// TickHandler receives ticks registered with OnTick.
//
// Handlers are matched by identity for OffTick, so implementations must be
// comparable; pointer types are. Use NewTickHandler to wrap a func.
type TickHandler interface {
	HandleTick(tick playlog.Tick)
}

// EventHandler receives events registered with OnEvent. The identity rules
// of TickHandler apply.
type EventHandler interface {
	HandleEvent(event playlog.Event)
}

type tickHandlerFunc struct {
	fn func(playlog.Tick)
}

func (h *tickHandlerFunc) HandleTick(tick playlog.Tick) { h.fn(tick) }

type eventHandlerFunc struct {
	fn func(playlog.Event)
}

func (h *eventHandlerFunc) HandleEvent(event playlog.Event) { h.fn(event) }

// NewTickHandler wraps fn in a handler with its own identity. Two calls with
// the same fn return two distinct handlers.
func NewTickHandler(fn func(playlog.Tick)) TickHandler {
	return &tickHandlerFunc{fn: fn}
}

// NewEventHandler wraps fn in a handler with its own identity.
func NewEventHandler(fn func(playlog.Event)) EventHandler {
	return &eventHandlerFunc{fn: fn}
}

// HandlerRegistry is a copy-on-write list of handlers.
//
// Add and Remove replace the backing slice instead of mutating it, so a
// Snapshot taken for a dispatch pass never changes underneath the pass:
// handlers added during a pass are not called in it, and handlers removed
// during a pass are still called once in it. Dispatch runs outside the lock,
// so handlers may call Add or Remove.
//
// Thread-safety: all methods are safe for concurrent use.
type HandlerRegistry[H comparable] struct {
	mu       sync.Mutex
	handlers []H
}

// Add appends h. Registering the same handler twice delivers to it twice.
func (r *HandlerRegistry[H]) Add(h H) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]H, len(r.handlers), len(r.handlers)+1)
	copy(next, r.handlers)
	r.handlers = append(next, h)
}

// Remove drops every registration of h. Returns false if h was not
// registered.
func (r *HandlerRegistry[H]) Remove(h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]H, 0, len(r.handlers))
	for _, registered := range r.handlers {
		if registered != h {
			next = append(next, registered)
		}
	}
	removed := len(next) != len(r.handlers)
	r.handlers = next
	return removed
}

// Snapshot returns the current handlers. The slice must not be modified.
func (r *HandlerRegistry[H]) Snapshot() []H {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handlers
}

// Len returns the number of registrations.
func (r *HandlerRegistry[H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Clear drops all registrations.
func (r *HandlerRegistry[H]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = nil
}

// DispatchTick delivers tick to every handler in a snapshot of r.
func DispatchTick(r *HandlerRegistry[TickHandler], tick playlog.Tick) {
	for _, h := range r.Snapshot() {
		h.HandleTick(tick)
	}
}

// DispatchEvent delivers event to every handler in a snapshot of r.
func DispatchEvent(r *HandlerRegistry[EventHandler], event playlog.Event) {
	for _, h := range r.Snapshot() {
		h.HandleEvent(event)
	}
}
