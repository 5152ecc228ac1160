package playlog

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeTick serializes a tick to MessagePack.
func EncodeTick(t Tick) ([]byte, error) {
	raw, err := msgpack.Marshal(&t)
	if err != nil {
		return nil, fmt.Errorf("encode tick %d: %w", t.Frame, err)
	}
	return raw, nil
}

// DecodeTick parses a MessagePack tick produced by EncodeTick.
func DecodeTick(data []byte) (Tick, error) {
	var t Tick
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	return t, nil
}

// EncodeEvents serializes an event slice to MessagePack.
// A nil or empty slice encodes as an empty array.
func EncodeEvents(events []Event) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}
	raw, err := msgpack.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	return raw, nil
}

// DecodeEvents parses a MessagePack event slice. An empty array decodes to nil.
func DecodeEvents(data []byte) ([]Event, error) {
	var events []Event
	if err := msgpack.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events, nil
}

// EncodeEvent serializes a single event to MessagePack.
func EncodeEvent(e Event) ([]byte, error) {
	raw, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return raw, nil
}

// DecodeEvent parses a MessagePack event produced by EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
