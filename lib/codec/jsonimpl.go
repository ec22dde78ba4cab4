package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Encoding Constants
// --------------------------------------------------------------------------

const (
	// envelopeField wraps every serialized value in a single-field object.
	// This guarantees the tag interceptor runs even when the top-level value
	// itself is one of the special types.
	envelopeField = "data"

	// tagField and payloadField form the tagged-variant encoding for values
	// that plain JSON cannot represent.
	tagField     = "__kind"
	payloadField = "payload"

	kindTime      = "time"
	kindMap       = "map"
	kindSet       = "set"
	kindUndefined = "undefined"
)

// NewJSONCodec creates a codec that persists values as JSON text with a
// tagged encoding for the extended type vocabulary (time.Time, maps with
// non-string keys, Set, Undefined).
func NewJSONCodec() ICodec {
	return &jsonCodecImpl{}
}

type jsonCodecImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (c *jsonCodecImpl) Serialize(value any) (string, error) {
	enc, err := encodeValue(value)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(map[string]any{envelopeField: enc})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return string(raw), nil
}

func (c *jsonCodecImpl) Deserialize(data string) (any, error) {
	var raw any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialize, err)
	}

	env, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing envelope", ErrDeserialize)
	}
	inner, ok := env[envelopeField]
	if !ok {
		return nil, fmt.Errorf("%w: missing envelope field %q", ErrDeserialize, envelopeField)
	}

	return decodeValue(inner)
}

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// tagged builds one tagged-variant object.
func tagged(kind string, payload any) map[string]any {
	m := map[string]any{tagField: kind}
	if payload != nil {
		m[payloadField] = payload
	}
	return m
}

// encodeValue transforms a value tree into a JSON-safe tree, replacing every
// special-typed value with its tagged encoding. The walk handles arbitrary
// nesting (objects, arrays, struct fields).
func encodeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case undefined:
		return tagged(kindUndefined, nil), nil
	case time.Time:
		return tagged(kindTime, v.Format(time.RFC3339Nano)), nil
	case Set:
		payload := make([]any, 0, len(v))
		for elem := range v {
			enc, err := encodeValue(elem)
			if err != nil {
				return nil, err
			}
			payload = append(payload, enc)
		}
		return tagged(kindSet, payload), nil
	case json.Number:
		return v, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeValue(rv.Elem().Interface())

	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				enc, err := encodeValue(iter.Value().Interface())
				if err != nil {
					return nil, err
				}
				out[iter.Key().String()] = enc
			}
			return out, nil
		}
		// Non-string keys cannot be JSON object keys, encode as pair list.
		pairs := make([]any, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			encKey, err := encodeValue(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			encVal, err := encodeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, []any{encKey, encVal})
		}
		return tagged(kindMap, pairs), nil

	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			enc, err := encodeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil

	case reflect.Struct:
		out := make(map[string]any)
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			if tag, ok := field.Tag.Lookup("json"); ok {
				tagName := strings.Split(tag, ",")[0]
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			enc, err := encodeValue(rv.Field(i).Interface())
			if err != nil {
				return nil, err
			}
			out[name] = enc
		}
		return out, nil

	case reflect.String:
		return rv.String(), nil
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return value, nil

	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrSerialize, value)
	}
}

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// decodeValue reverses encodeValue. Tagged objects are reconstructed into
// their native types, everything else is recursed into as-is. The tag set is
// closed: objects whose tag is not in the vocabulary stay plain maps.
func decodeValue(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if kind, ok := v[tagField].(string); ok {
			if decoded, handled, err := decodeTagged(kind, v[payloadField]); handled {
				return decoded, err
			}
		}
		out := make(map[string]any, len(v))
		for key, elem := range v {
			dec, err := decodeValue(elem)
			if err != nil {
				return nil, err
			}
			out[key] = dec
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			dec, err := decodeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil

	default:
		return value, nil
	}
}

// decodeTagged reconstructs a single tagged value. The handled return value
// reports whether the kind belongs to the vocabulary.
func decodeTagged(kind string, payload any) (any, bool, error) {
	switch kind {
	case kindTime:
		text, ok := payload.(string)
		if !ok {
			return nil, true, fmt.Errorf("%w: time payload is not a string", ErrDeserialize)
		}
		ts, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %v", ErrDeserialize, err)
		}
		return ts, true, nil

	case kindMap:
		pairs, ok := payload.([]any)
		if !ok {
			return nil, true, fmt.Errorf("%w: map payload is not a list", ErrDeserialize)
		}
		out := make(map[any]any, len(pairs))
		for _, raw := range pairs {
			pair, ok := raw.([]any)
			if !ok || len(pair) != 2 {
				return nil, true, fmt.Errorf("%w: malformed map pair", ErrDeserialize)
			}
			key, err := decodeValue(pair[0])
			if err != nil {
				return nil, true, err
			}
			if key != nil && !reflect.TypeOf(key).Comparable() {
				return nil, true, fmt.Errorf("%w: map key is not comparable", ErrDeserialize)
			}
			val, err := decodeValue(pair[1])
			if err != nil {
				return nil, true, err
			}
			out[key] = val
		}
		return out, true, nil

	case kindSet:
		elems, ok := payload.([]any)
		if !ok {
			return nil, true, fmt.Errorf("%w: set payload is not a list", ErrDeserialize)
		}
		out := make(Set, len(elems))
		for _, raw := range elems {
			elem, err := decodeValue(raw)
			if err != nil {
				return nil, true, err
			}
			if elem != nil && !reflect.TypeOf(elem).Comparable() {
				return nil, true, fmt.Errorf("%w: set element is not comparable", ErrDeserialize)
			}
			out[elem] = struct{}{}
		}
		return out, true, nil

	case kindUndefined:
		return Undefined, true, nil

	default:
		// Unknown tag: not part of the vocabulary, caller keeps the plain map.
		return nil, false, nil
	}
}
