package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoundTrip tests that values round-trip through Serialize/Deserialize,
// including special types at the top level and at arbitrary nesting depth.
func TestRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 17, 12, 30, 45, 123456789, time.UTC)

	testCases := []struct {
		name  string
		value any
		want  any
	}{
		{
			name:  "string",
			value: "hello",
			want:  "hello",
		},
		{
			name:  "number",
			value: 42,
			want:  float64(42),
		},
		{
			name:  "bool",
			value: true,
			want:  true,
		},
		{
			name:  "null",
			value: nil,
			want:  nil,
		},
		{
			name:  "top-level time",
			value: ts,
			want:  ts,
		},
		{
			name:  "top-level undefined",
			value: Undefined,
			want:  Undefined,
		},
		{
			name:  "top-level set",
			value: NewSet("a", "b"),
			want:  NewSet("a", "b"),
		},
		{
			name:  "top-level non-string-key map",
			value: map[int]string{1: "one", 2: "two"},
			want:  map[any]any{float64(1): "one", float64(2): "two"},
		},
		{
			name:  "plain object",
			value: map[string]any{"name": "John", "age": 30},
			want:  map[string]any{"name": "John", "age": float64(30)},
		},
		{
			name:  "array",
			value: []any{"a", 1, true},
			want:  []any{"a", float64(1), true},
		},
		{
			name: "nested special types",
			value: map[string]any{
				"created": ts,
				"tags":    NewSet("x", "y"),
				"nested": []any{
					map[string]any{"when": ts, "missing": Undefined},
				},
			},
			want: map[string]any{
				"created": ts,
				"tags":    NewSet("x", "y"),
				"nested": []any{
					map[string]any{"when": ts, "missing": Undefined},
				},
			},
		},
		{
			name:  "set of times",
			value: NewSet(ts),
			want:  NewSet(ts),
		},
	}

	c := NewJSONCodec()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := c.Serialize(tc.value)
			require.NoError(t, err)

			result, err := c.Deserialize(data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, result)
		})
	}
}

// TestStructEncoding tests that structs are encoded by exported field,
// honoring json tag names.
func TestStructEncoding(t *testing.T) {
	type profile struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Internal  string `json:"-"`
		Joined    time.Time
		secret    string
	}

	c := NewJSONCodec()
	ts := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	data, err := c.Serialize(profile{
		FirstName: "John",
		LastName:  "Doe",
		Internal:  "dropped",
		Joined:    ts,
		secret:    "dropped",
	})
	require.NoError(t, err)

	result, err := c.Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"firstName": "John",
		"lastName":  "Doe",
		"Joined":    ts,
	}, result)
}

// TestPointerEncoding tests that pointers are dereferenced and nil pointers
// encode as null.
func TestPointerEncoding(t *testing.T) {
	c := NewJSONCodec()

	s := "value"
	data, err := c.Serialize(map[string]any{"p": &s, "n": (*string)(nil)})
	require.NoError(t, err)

	result, err := c.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"p": "value", "n": nil}, result)
}

// TestUnsupportedTypes tests that values outside the vocabulary are rejected.
func TestUnsupportedTypes(t *testing.T) {
	c := NewJSONCodec()

	for name, value := range map[string]any{
		"channel":  make(chan int),
		"function": func() {},
		"nested":   map[string]any{"bad": make(chan int)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Serialize(value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSerialize))
		})
	}
}

// TestDeserializeMalformed tests that malformed input fails with
// ErrDeserialize instead of returning partial data.
func TestDeserializeMalformed(t *testing.T) {
	c := NewJSONCodec()

	testCases := []struct {
		name string
		data string
	}{
		{"invalid json", "{not json"},
		{"empty", ""},
		{"no envelope", `"just a string"`},
		{"wrong envelope field", `{"value": 1}`},
		{"bad time payload", `{"data":{"__kind":"time","payload":"not-a-time"}}`},
		{"bad time payload type", `{"data":{"__kind":"time","payload":5}}`},
		{"bad map payload", `{"data":{"__kind":"map","payload":"nope"}}`},
		{"malformed map pair", `{"data":{"__kind":"map","payload":[[1]]}}`},
		{"bad set payload", `{"data":{"__kind":"set","payload":{}}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Deserialize(tc.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDeserialize))
		})
	}
}

// TestUnknownTagPassthrough tests that objects with an unrecognized __kind
// stay plain maps (the tag set is closed).
func TestUnknownTagPassthrough(t *testing.T) {
	c := NewJSONCodec()

	result, err := c.Deserialize(`{"data":{"__kind":"custom","payload":1}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"__kind": "custom", "payload": float64(1)}, result)
}
