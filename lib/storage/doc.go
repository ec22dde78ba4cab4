// Package storage defines the string-keyed backend surface the store engine
// persists through, together with its change-notification contract.
//
// A Backend is a synchronous get/set/remove/enumerate surface over raw
// string values, scoped to either durable (local) or process-bound (session)
// lifetime. Mutations made through one context are broadcast to watchers in
// every *other* context sharing the same underlying storage; a context never
// observes its own writes through Watch. This mirrors how cooperating
// processes (or handles over one in-memory hub) keep each other in sync
// without any coordination protocol: delivery is best effort and
// last-write-wins.
//
// Backends advertise their capabilities through Feature bit flags so callers
// can degrade gracefully, e.g. skip cross-context subscription on a backend
// without FeatureWatch.
//
// Engines:
//
//   - engines/memory: a session-scoped in-process hub. Handles created from
//     one hub model independent contexts over shared data, with ordered
//     asynchronous event dispatch and an optional byte quota.
//   - engines/file: a durable one-file-per-key directory backend with
//     fsnotify-based cross-process change notification.
//   - engines/sqlite: a durable single-table SQLite backend with a polling
//     watcher, for deployments that prefer one database file over a
//     directory tree.
//
// The testing sub-package provides a conformance suite that every engine
// must pass.
package storage
