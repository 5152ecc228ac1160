package playlog

import (
	"encoding/json"
	"fmt"
)

// Tick is one simulation step. Its identity is its Frame within the play's
// global tick sequence. A tick is immutable once sent.
type Tick struct {
	Frame       int64         `json:"frame" msgpack:"frame"`
	Events      []Event       `json:"events,omitempty" msgpack:"events,omitempty"`
	StorageData []StorageData `json:"storage_data,omitempty" msgpack:"storage_data,omitempty"`
}

// HasEvents reports whether the tick carries at least one event.
func (t Tick) HasEvents() bool {
	return len(t.Events) > 0
}

// WithoutTransient returns a copy of t with transient events removed.
// This is the form a backend persists.
func (t Tick) WithoutTransient() Tick {
	t.Events = filterEvents(t.Events, func(ev Event) bool { return !ev.Transient() })
	return t
}

// WithoutIgnorable returns a copy of t with ignorable events removed.
func (t Tick) WithoutIgnorable() Tick {
	t.Events = filterEvents(t.Events, func(ev Event) bool { return !ev.Ignorable() })
	return t
}

// TickList is a stored half-open range [Begin, End) of ticks.
//
// Ticks holds only the ticks of the range that carry events; frames without
// events are implied by the range bounds. An empty range is therefore
// [begin, end, []].
type TickList struct {
	Begin int64
	End   int64
	Ticks []Tick
}

// NewTickList builds a TickList for [begin, end) from ticks, keeping only the
// ticks that fall inside the range and carry events.
func NewTickList(begin, end int64, ticks []Tick) TickList {
	tl := TickList{Begin: begin, End: end, Ticks: []Tick{}}
	for _, t := range ticks {
		if t.Frame < begin || t.Frame >= end || !t.HasEvents() {
			continue
		}
		tl.Ticks = append(tl.Ticks, t)
	}
	return tl
}

// WithoutIgnorable returns a copy of the list with ignorable events removed.
// Ticks left without events drop out of the list.
func (tl TickList) WithoutIgnorable() TickList {
	filtered := make([]Tick, 0, len(tl.Ticks))
	for _, t := range tl.Ticks {
		filtered = append(filtered, t.WithoutIgnorable())
	}
	return NewTickList(tl.Begin, tl.End, filtered)
}

// MarshalJSON encodes the list as [begin, end, ticks].
func (tl TickList) MarshalJSON() ([]byte, error) {
	ticks := tl.Ticks
	if ticks == nil {
		ticks = []Tick{}
	}
	return json.Marshal([]any{tl.Begin, tl.End, ticks})
}

// UnmarshalJSON decodes [begin, end] or [begin, end, ticks].
func (tl *TickList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tick list: %w", err)
	}
	if len(raw) < 2 || len(raw) > 3 {
		return fmt.Errorf("tick list: expected 2 or 3 elements, got %d", len(raw))
	}

	var out TickList
	if err := json.Unmarshal(raw[0], &out.Begin); err != nil {
		return fmt.Errorf("tick list begin: %w", err)
	}
	if err := json.Unmarshal(raw[1], &out.End); err != nil {
		return fmt.Errorf("tick list end: %w", err)
	}
	out.Ticks = []Tick{}
	if len(raw) == 3 {
		if err := json.Unmarshal(raw[2], &out.Ticks); err != nil {
			return fmt.Errorf("tick list ticks: %w", err)
		}
		if out.Ticks == nil {
			out.Ticks = []Tick{}
		}
	}

	*tl = out
	return nil
}
