// Package memory provides a session-scoped in-process storage engine.
//
// A Hub owns the shared data; handles created with Hub.Handle are
// independent storage contexts over that data, each with its own origin
// identity. A write through one handle is observed by watchers on every
// other handle of the same hub, never by the writer itself. Events are
// dispatched asynchronously by a single goroutine in commit order.
//
// An optional MaxBytes quota makes SetItem fail with
// storage.ErrQuotaExceeded once the accounted payload size would exceed the
// limit, which is useful for exercising quota handling in tests.
package memory
