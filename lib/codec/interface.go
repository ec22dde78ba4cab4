package codec

import "errors"

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ICodec is the interface for all value codecs.
// A codec converts an arbitrary value into its persisted string form and back.
// Serialize and Deserialize must form a round-trip pair for the supported
// type vocabulary (see package documentation).
type ICodec interface {
	// Serialize converts a value into its persisted string representation.
	// It returns an error if the value contains types outside the supported
	// vocabulary (e.g. channels or functions).
	Serialize(value any) (string, error)
	// Deserialize converts a persisted string back into a value.
	// It returns an error wrapping ErrDeserialize on malformed input.
	Deserialize(data string) (any, error)
}

// --------------------------------------------------------------------------
// Sentinel Errors
// --------------------------------------------------------------------------

var (
	// ErrSerialize is wrapped by all encoding failures.
	ErrSerialize = errors.New("codec: serialize failed")
	// ErrDeserialize is wrapped by all decoding failures, including
	// syntactically invalid input.
	ErrDeserialize = errors.New("codec: deserialize failed")
)

// --------------------------------------------------------------------------
// Extended Type Vocabulary
// --------------------------------------------------------------------------

// Set is a collection of unique values that survives serialization as a
// distinct type (a plain slice would lose the uniqueness semantics).
// Elements must be comparable and within the supported vocabulary.
type Set map[any]struct{}

// NewSet creates a Set from the given elements.
func NewSet(elems ...any) Set {
	s := make(Set, len(elems))
	for _, e := range elems {
		s[e] = struct{}{}
	}
	return s
}

// undefined is the type of the Undefined sentinel.
type undefined struct{}

// Undefined is an explicit "no value" marker that round-trips through
// serialization (a nil would be indistinguishable from JSON null).
var Undefined = undefined{}
