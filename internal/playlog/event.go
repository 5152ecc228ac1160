package playlog

import (
	"encoding/json"
	"strings"
)

// EventFlags is a bitset attached to every Event.
type EventFlags uint8

const (
	// EventFlagTransient marks an event as realtime-only. Transient events are
	// delivered to subscribers but never stored, so they never appear in a
	// TickList.
	EventFlagTransient EventFlags = 1 << 3

	// EventFlagIgnorable marks an event that replaying clients may skip.
	// Tick-list queries can ask for ignorable events to be omitted.
	EventFlagIgnorable EventFlags = 1 << 4
)

// Has reports whether all bits of f are set.
func (fl EventFlags) Has(f EventFlags) bool {
	return fl&f == f
}

// String renders the set flags, e.g. "transient|ignorable".
func (fl EventFlags) String() string {
	var parts []string
	if fl.Has(EventFlagTransient) {
		parts = append(parts, "transient")
	}
	if fl.Has(EventFlagIgnorable) {
		parts = append(parts, "ignorable")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// EventCode identifies the application-level kind of an event.
type EventCode int

// Event is an application message broadcast alongside or independent of ticks.
type Event struct {
	Code     EventCode       `json:"code" msgpack:"code"`
	Priority int             `json:"priority" msgpack:"priority"`
	Flags    EventFlags      `json:"flags,omitempty" msgpack:"flags,omitempty"`
	PlayerID string          `json:"player_id,omitempty" msgpack:"player_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// Transient reports whether the event must be excluded from storage.
func (e Event) Transient() bool {
	return e.Flags.Has(EventFlagTransient)
}

// Ignorable reports whether the event may be filtered from tick lists.
func (e Event) Ignorable() bool {
	return e.Flags.Has(EventFlagIgnorable)
}

// WithPriority returns a copy of e carrying the given priority.
func (e Event) WithPriority(priority int) Event {
	e.Priority = priority
	return e
}

// filterEvents returns the events for which keep returns true.
// Returns nil when nothing is kept so empty ticks compare equal.
func filterEvents(events []Event, keep func(Event) bool) []Event {
	var out []Event
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}
