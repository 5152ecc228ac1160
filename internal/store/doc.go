// Package store provides SQLite-backed persistence for AMFlow plays.
//
// Three tables hold a play's durable state:
//   - ticks: one row per sent frame, events encoded as MessagePack
//   - start_points: append-only snapshots, several per play
//   - storage_data: the key/value store addressed by StorageKey
//
// # Ordering
//
// Tick reads are ordered by frame ASC. Start point lookups break ties on the
// compared column by insertion order, so the start point stored last wins.
// Storage reads are ordered by user_id COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Ticks are stored exactly as given; callers strip transient events before
// AppendTick.
package store
