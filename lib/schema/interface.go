package schema

import "fmt"

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Schema is the capability interface every validator must provide: parse
// unknown data into a T or reject it with an error. Implementations adapt
// concrete validation styles (closures, struct tags, primitives) to this one
// calling convention; callers never branch on the concrete adapter.
type Schema[T any] interface {
	// Parse validates data and returns the typed value, or an error if the
	// data does not conform.
	Parse(data any) (T, error)
}

// TryParser is the optional non-panicking capability. Implementations that
// provide it are preferred by SafeParse since no recovery boundary is needed.
type TryParser[T any] interface {
	// TryParse validates data and reports the outcome as a Result instead of
	// an error return. It must never panic.
	TryParse(data any) Result[T]
}

// Result is the outcome of a TryParse call.
type Result[T any] struct {
	Success bool
	Data    T
	Err     error
}

// --------------------------------------------------------------------------
// Failure Boundary
// --------------------------------------------------------------------------

// SafeParse validates data against s without ever panicking. If s implements
// TryParser, that path is used directly; otherwise Parse runs inside a
// recovery boundary so a misbehaving implementation cannot crash the caller.
func SafeParse[T any](s Schema[T], data any) (result Result[T]) {
	if tp, ok := s.(TryParser[T]); ok {
		return tp.TryParse(data)
	}

	defer func() {
		if r := recover(); r != nil {
			result = Result[T]{Err: fmt.Errorf("schema: parse panicked: %v", r)}
		}
	}()

	out, err := s.Parse(data)
	if err != nil {
		return Result[T]{Err: err}
	}
	return Result[T]{Success: true, Data: out}
}
