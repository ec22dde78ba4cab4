package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveAdapters(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		s := String()

		out, err := s.Parse("hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", out)

		_, err = s.Parse(42)
		assert.Error(t, err)
	})

	t.Run("Int", func(t *testing.T) {
		s := Int()

		out, err := s.Parse(float64(5))
		require.NoError(t, err)
		assert.Equal(t, 5, out)

		out, err = s.Parse(7)
		require.NoError(t, err)
		assert.Equal(t, 7, out)

		_, err = s.Parse(5.5)
		assert.Error(t, err)

		_, err = s.Parse("5")
		assert.Error(t, err)
	})

	t.Run("Float", func(t *testing.T) {
		s := Float()

		out, err := s.Parse(2.5)
		require.NoError(t, err)
		assert.Equal(t, 2.5, out)

		_, err = s.Parse(true)
		assert.Error(t, err)
	})

	t.Run("Bool", func(t *testing.T) {
		s := Bool()

		out, err := s.Parse(true)
		require.NoError(t, err)
		assert.True(t, out)

		_, err = s.Parse("true")
		assert.Error(t, err)
	})

	t.Run("Any", func(t *testing.T) {
		out, err := Any().Parse(map[string]any{"k": 1})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"k": 1}, out)
	})
}

func TestStructAdapter(t *testing.T) {
	type user struct {
		FirstName string    `json:"firstName" validate:"required"`
		LastName  string    `json:"lastName" validate:"required"`
		Age       int       `json:"age" validate:"gte=0"`
		Joined    time.Time `json:"joined"`
	}

	s := Struct[user]()
	joined := time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		out, err := s.Parse(map[string]any{
			"firstName": "John",
			"lastName":  "Doe",
			"age":       float64(30),
			"joined":    joined,
		})
		require.NoError(t, err)
		assert.Equal(t, user{FirstName: "John", LastName: "Doe", Age: 30, Joined: joined}, out)
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := s.Parse(map[string]any{"firstName": "John"})
		assert.Error(t, err)
	})

	t.Run("constraint violation", func(t *testing.T) {
		_, err := s.Parse(map[string]any{
			"firstName": "John",
			"lastName":  "Doe",
			"age":       float64(-1),
		})
		assert.Error(t, err)
	})

	t.Run("wrong shape", func(t *testing.T) {
		_, err := s.Parse("not an object")
		assert.Error(t, err)
	})

	t.Run("implements TryParser", func(t *testing.T) {
		tp, ok := Schema[user](s).(TryParser[user])
		require.True(t, ok)

		res := tp.TryParse(map[string]any{"firstName": "John", "lastName": "Doe"})
		assert.True(t, res.Success)
		assert.Equal(t, "John", res.Data.FirstName)

		res = tp.TryParse(nil)
		assert.False(t, res.Success)
		assert.Error(t, res.Err)
	})
}

func TestSafeParse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		res := SafeParse(String(), "ok")
		assert.True(t, res.Success)
		assert.Equal(t, "ok", res.Data)
	})

	t.Run("failure", func(t *testing.T) {
		res := SafeParse(String(), 1)
		assert.False(t, res.Success)
		assert.Error(t, res.Err)
	})

	t.Run("panic contained", func(t *testing.T) {
		boom := Func(func(any) (string, error) {
			panic("validator exploded")
		})

		res := SafeParse(boom, "data")
		assert.False(t, res.Success)
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "validator exploded")
	})

	t.Run("prefers TryParse", func(t *testing.T) {
		s := &tryOnlyPanicSchema{}
		res := SafeParse[string](s, "data")
		assert.False(t, res.Success)
		assert.True(t, errors.Is(res.Err, errTryPath))
	})
}

var errTryPath = errors.New("came through TryParse")

// tryOnlyPanicSchema panics in Parse but answers through TryParse, proving
// that SafeParse prefers the non-panicking capability.
type tryOnlyPanicSchema struct{}

func (s *tryOnlyPanicSchema) Parse(any) (string, error) {
	panic("Parse must not be called when TryParse exists")
}

func (s *tryOnlyPanicSchema) TryParse(any) Result[string] {
	return Result[string]{Err: errTryPath}
}
