// Package hub is the reference AMFlow backend.
//
// A Hub owns the plays of one server. Each Session it creates implements
// amflow.AMFlow: Open binds the session to a play, Authenticate grants a
// Permission, and from then on ticks and events sent by any session of the
// play are delivered to every session of the play whose permission allows
// receiving them, the sender included.
//
// Delivery is synchronous on the sender's goroutine and happens after all
// hub locks are released, so handlers may call back into any session.
//
// Durable state (ticks, start points, storage) lives behind the Persistence
// interface: MemoryPersistence for tests and embedding, store.Store for
// SQLite.
package hub
