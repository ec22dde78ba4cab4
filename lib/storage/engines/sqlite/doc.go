// Package sqlite provides a durable storage engine backed by a single
// SQLite database file (modernc.org/sqlite, no cgo).
//
// All keys live in one kv table. Change notification is implemented as a
// polling watcher that diffs table snapshots, since SQLite offers no
// cross-process broadcast; notification latency is bounded by the configured
// poll interval. Own writes are tracked and suppressed so a context never
// observes its own changes, matching the storage.Backend contract.
package sqlite
