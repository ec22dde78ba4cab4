package schema

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// --------------------------------------------------------------------------
// Closure Adapter
// --------------------------------------------------------------------------

// Func adapts a plain parse function to the Schema interface.
func Func[T any](parse func(data any) (T, error)) Schema[T] {
	return funcSchemaImpl[T]{parse: parse}
}

type funcSchemaImpl[T any] struct {
	parse func(data any) (T, error)
}

func (s funcSchemaImpl[T]) Parse(data any) (T, error) {
	return s.parse(data)
}

// --------------------------------------------------------------------------
// Primitive Adapters
// --------------------------------------------------------------------------

// String validates that the data is a string.
func String() Schema[string] {
	return Func(func(data any) (string, error) {
		if s, ok := data.(string); ok {
			return s, nil
		}
		return "", fmt.Errorf("schema: expected string, got %T", data)
	})
}

// Int validates that the data is an integral number. JSON numbers arrive as
// float64, so integral floats are accepted.
func Int() Schema[int] {
	return Func(func(data any) (int, error) {
		switch n := data.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return 0, fmt.Errorf("schema: expected integer, got %v", n)
			}
			return int(n), nil
		default:
			return 0, fmt.Errorf("schema: expected number, got %T", data)
		}
	})
}

// Float validates that the data is a number.
func Float() Schema[float64] {
	return Func(func(data any) (float64, error) {
		switch n := data.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		default:
			return 0, fmt.Errorf("schema: expected number, got %T", data)
		}
	})
}

// Bool validates that the data is a boolean.
func Bool() Schema[bool] {
	return Func(func(data any) (bool, error) {
		if b, ok := data.(bool); ok {
			return b, nil
		}
		return false, fmt.Errorf("schema: expected bool, got %T", data)
	})
}

// Any accepts every value unchanged.
func Any() Schema[any] {
	return Func(func(data any) (any, error) {
		return data, nil
	})
}

// --------------------------------------------------------------------------
// Struct Adapter
// --------------------------------------------------------------------------

// Struct builds a schema for a struct type T. Data is decoded by json field
// name via mapstructure and then validated against T's `validate` struct
// tags. It implements the TryParser capability.
func Struct[T any]() Schema[T] {
	return &structSchemaImpl[T]{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type structSchemaImpl[T any] struct {
	validate *validator.Validate
}

func (s *structSchemaImpl[T]) Parse(data any) (T, error) {
	var out T

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &out,
		TagName:     "json",
		ErrorUnused: false,
	})
	if err != nil {
		return out, fmt.Errorf("schema: %w", err)
	}
	if err := dec.Decode(data); err != nil {
		return out, fmt.Errorf("schema: %w", err)
	}

	if err := s.validate.Struct(&out); err != nil {
		return out, fmt.Errorf("schema: %w", err)
	}
	return out, nil
}

func (s *structSchemaImpl[T]) TryParse(data any) Result[T] {
	out, err := s.Parse(data)
	if err != nil {
		return Result[T]{Err: err}
	}
	return Result[T]{Success: true, Data: out}
}
