// Package amflow defines the AMFlow session and replication contract and the
// adapter that turns a callback-style implementation into a future-returning
// one.
//
// # Contract
//
// AMFlow is the operation set every backend implements, grouped in four
// categories:
//
//   - Session: Open, Close, Authenticate
//   - Realtime: SendTick/OnTick/OffTick, SendEvent/OnEvent/OffEvent
//   - Cached data: GetTickList, PutStartPoint, GetStartPoint
//   - Storage: PutStorageData, GetStorageData
//
// Session lifecycle is Closed -> Open -> Closed. Open on an open session
// fails with InvalidStatus; Close on a closed session succeeds.
//
// # Authorization
//
// Authenticate yields a Permission. Every gated operation is checked with the
// single Authorize function against an Operation tag, so backends never
// duplicate the permission table. Authorization is advisory at the interface
// level: the contract names the bit, the backend enforces it.
//
// # Error discipline
//
// Asynchronous operations report failure only through their callback, never
// by panicking. SendTick and SendEvent return an error value directly. The
// adapter rejects its Future with the callback's error value, unmodified.
//
// # Adapter
//
// Promisify wraps any AMFlow. Each asynchronous call returns a *Future that
// settles exactly once; a backend that invokes its callback twice has only
// its first call observed. Realtime operations pass through unchanged.
//
// GetTickList takes a TickListQuery, a tagged union of the legacy (begin,
// end) form and the options form. Both normalize to GetTickListOptions
// before dispatch.
package amflow
