package store

import "fmt"

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the generic interface for a single validated, versioned value
// persisted under one storage key.
//
// Read operations never return an error: every read-path failure (malformed
// data, failed validation, expiration) degrades to "no value" and is
// reported through the configured error callback. Write operations return a
// *Error describing why the write was refused.
type IStore[T any] interface {
	// Get runs the full read pipeline (deserialize, expire, migrate,
	// validate) and returns the current value. The boolean is false if no
	// valid value exists; the configured default, if any, is returned in
	// its place with ok=true.
	Get() (value T, ok bool)

	// GetRaw returns the persisted envelope without applying expiration,
	// migration or validation. Debugging and introspection only: it skips
	// every invariant the other operations enforce.
	GetRaw() (record *Record, ok bool)

	// Set validates data and persists it wholesale, then synchronously
	// notifies local subscribers. Validation, serialization and persistence
	// failures are returned (and reported).
	Set(data T) (err error)

	// Update is equivalent to Set(fn(Get())). The present flag passed to fn
	// reports whether a current value exists. Not atomic across stores
	// sharing a key.
	Update(fn func(current T, present bool) T) (err error)

	// Remove deletes the key unconditionally (absent is not an error) and
	// synchronously notifies subscribers with no value.
	Remove() (err error)

	// Has reports whether Get would return a stored valid value. It re-runs
	// the full read pipeline and ignores the configured default.
	Has() (ok bool)

	// OnUpdate registers a callback invoked with the new value after every
	// local write or removal (synchronously) and after observed foreign
	// changes to this key (asynchronously). The returned function removes
	// this registration and is idempotent.
	OnUpdate(fn func(value T, present bool)) (unsubscribe func())

	// Flush immediately executes a pending debounced or throttled write, if
	// any.
	Flush() (err error)

	// Close cancels pending rate-limited writes and detaches the
	// cross-context watcher. The store must not be used afterwards.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Persisted Envelope
// --------------------------------------------------------------------------

// Record is the persisted envelope around a value. A record on disk is
// either fully well-formed or treated as absent; partially valid records are
// never acted upon.
type Record struct {
	// Value is the validated application value (untyped after decoding).
	Value any `json:"value"`
	// Version is the schema version the value was written under (0 = none).
	Version int `json:"version,omitempty"`
	// Timestamp is the write time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// ExpiresAt is the absolute expiration instant in epoch milliseconds
	// (0 = never expires).
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// ErrorKind classifies store failures.
type ErrorKind uint8

const (
	// KindValidation: data failed the schema check, on read or write.
	KindValidation ErrorKind = iota
	// KindMigration: the migration function failed or returned unusable data.
	KindMigration
	// KindSerialization: encoding a value for persistence failed.
	KindSerialization
	// KindDeserialization: decoding stored text failed.
	KindDeserialization
	// KindQuota: the storage backend rejected a write for capacity reasons.
	KindQuota
	// KindEnvironment: no storage backend is configured, or the backend
	// itself failed.
	KindEnvironment
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindMigration:
		return "Migration"
	case KindSerialization:
		return "Serialization"
	case KindDeserialization:
		return "Deserialization"
	case KindQuota:
		return "Quota"
	case KindEnvironment:
		return "Environment"
	default:
		return "Unknown"
	}
}

// Error is the error type for all store failures. It carries the failure
// kind, the storage key of the affected store, and the underlying cause.
type Error struct {
	Kind ErrorKind
	Key  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (kind %s, key %q): %v", e.Kind, e.Key, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new store Error with the given kind, key and cause.
func NewError(kind ErrorKind, key string, err error) *Error {
	return &Error{Kind: kind, Key: key, Err: err}
}
