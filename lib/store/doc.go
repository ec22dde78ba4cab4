// Package store defines the contract for a validated, versioned,
// expiring value persisted under one storage key, with local and
// cross-context update notification.
//
// The package focuses on:
//   - A unified generic interface (IStore) whose read path can never fail
//     loudly: corrupted, expired or invalid persisted data degrades to
//     "no value" and is purged, while write failures surface to the caller
//   - The persisted Record envelope (value, version, timestamp, expiresAt)
//   - A structured error system using typed failure kinds so callers and
//     error callbacks can react to specific conditions
//
// Key Components:
//
//   - IStore Interface: get/set/update/remove plus subscription. Every
//     read runs the ordered policy pipeline expiration → migration →
//     validation; later stages assume earlier ones already ran.
//
//   - Record: the envelope written to storage. A record is either fully
//     well-formed and parseable or treated as absent; no partially valid
//     record is ever acted upon.
//
//   - Error System: every failure is a *Error carrying an ErrorKind
//     (Validation, Migration, Serialization, Deserialization, Quota,
//     Environment), the affected key and the underlying cause. Read-path
//     failures are recovered locally and routed to the configured error
//     callback; write-path failures are reported and returned.
//
// The vstore sub-package provides the engine implementation.
package store
