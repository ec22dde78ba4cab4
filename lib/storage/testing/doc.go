// Package testing provides a reusable conformance test suite for
// storage.Backend implementations.
//
// Engines call RunBackendTests with a factory producing two contexts over
// the same underlying storage, so the suite can verify both the data surface
// and the cross-context change-notification contract (delivery to other
// contexts, suppression of own writes, cancel semantics).
package testing
