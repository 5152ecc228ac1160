// Package playlog defines the payload shapes that AMFlow threads through:
// ticks, events, tick lists and key/value storage records.
//
// The protocol layer treats these as opaque except for two things it reads
// directly:
//   - an event's flags (transient events are never persisted, ignorable
//     events may be filtered out of tick lists)
//   - an event's priority (clamped by the sender's permission)
//
// This package imports nothing internal. Every other package may import it.
//
// Wire forms:
//   - JSON: TickList encodes as the array [begin, end, ticks]; everything
//     else uses snake_case object keys.
//   - MessagePack: EncodeEvents is the SQLite blob form of a tick's events;
//     EncodeTick/EncodeEvent are the bodies of binary WebSocket push frames.
package playlog
