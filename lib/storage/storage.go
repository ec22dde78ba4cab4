package storage

import "errors"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory Implementation = "memory"
	ImplFile   Implementation = "file"
	ImplSQLite Implementation = "sqlite"
)

// Scope describes the lifetime of a backend's data.
type Scope string

const (
	// ScopeLocal data survives process restarts.
	ScopeLocal Scope = "local"
	// ScopeSession data lives only as long as the owning hub/process.
	ScopeSession Scope = "session"
)

// Feature represents backend features as bit flags
type Feature uint64

const (
	FeatureGet        Feature = 1 << iota // Support for GetItem operations
	FeatureSet                            // Support for SetItem operations
	FeatureRemove                         // Support for RemoveItem operations
	FeatureKeys                           // Support for Keys/Len enumeration
	FeatureWatch                          // Support for change notification
	FeaturePersistent                     // Data survives process restarts
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeatureSet:
		return "Set"
	case FeatureRemove:
		return "Remove"
	case FeatureKeys:
		return "Keys"
	case FeatureWatch:
		return "Watch"
	case FeaturePersistent:
		return "Persistent"
	default:
		return "Unknown"
	}
}

// BackendInfo describes a backend instance.
type BackendInfo struct {
	Type              Implementation `json:"type"`
	Scope             Scope          `json:"scope"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// ErrQuotaExceeded is returned by SetItem when the backend rejects a write
// due to capacity.
var ErrQuotaExceeded = errors.New("storage: quota exceeded")

// --------------------------------------------------------------------------
// Change Notification
// --------------------------------------------------------------------------

// ChangeEvent describes a mutation of one key, as observed by contexts other
// than the one that performed it.
type ChangeEvent struct {
	// Key is the affected storage key.
	Key string
	// OldValue is the previous raw value, nil if the key did not exist or
	// the backend cannot reconstruct it.
	OldValue *string
	// NewValue is the new raw value, nil if the key was removed.
	NewValue *string
	// Origin identifies the writing context. Backends guarantee that a
	// context never receives events for its own writes.
	Origin string
}

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// Backend is the synchronous string-keyed storage surface the store engine
// builds on. Implementations vary in scope, durability and feature support,
// which can be queried with SupportsFeature.
type Backend interface {

	// GetItem returns the raw value for a key. The boolean return value
	// indicates whether the key exists.
	GetItem(key string) (value string, ok bool, err error)

	// SetItem inserts or replaces the raw value for a key. A write that
	// exceeds a configured capacity fails with ErrQuotaExceeded.
	SetItem(key string, value string) error

	// RemoveItem deletes a key. Removing an absent key is not an error.
	RemoveItem(key string) error

	// Keys returns all existing keys in unspecified order.
	Keys() ([]string, error)

	// Len returns the number of existing keys.
	Len() (int, error)

	// Watch registers fn for change events caused by other contexts sharing
	// the same underlying storage. The returned cancel function removes the
	// registration; it is idempotent. Backends deliver events asynchronously
	// but in commit order per key.
	Watch(fn func(ChangeEvent)) (cancel func(), err error)

	// SupportsFeature checks if the backend supports the specified feature.
	// Multiple features can be checked at once using bitwise OR.
	SupportsFeature(feature Feature) (ok bool)

	// Info returns metadata about the backend.
	Info() (info BackendInfo)

	// Close releases watcher resources. The backend must not be used after.
	Close() (err error)
}
