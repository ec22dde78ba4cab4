package vstore

import (
	"fmt"
	"math"

	"github.com/statekit/statekit/lib/store"
)

// Envelope field names as they appear in the persisted form.
const (
	fieldValue     = "value"
	fieldVersion   = "version"
	fieldTimestamp = "timestamp"
	fieldExpiresAt = "expiresAt"
)

// recordFromAny rebuilds a Record from a decoded envelope. Any structural
// defect fails: a persisted record is either fully well-formed or absent,
// never partially valid.
func recordFromAny(decoded any) (*store.Record, error) {
	env, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record envelope is %T, not an object", decoded)
	}

	value, hasValue := env[fieldValue]
	if !hasValue {
		return nil, fmt.Errorf("record envelope has no %q field", fieldValue)
	}

	timestamp, err := envelopeInt(env, fieldTimestamp, true)
	if err != nil {
		return nil, err
	}
	version, err := envelopeInt(env, fieldVersion, false)
	if err != nil {
		return nil, err
	}
	expiresAt, err := envelopeInt(env, fieldExpiresAt, false)
	if err != nil {
		return nil, err
	}

	return &store.Record{
		Value:     value,
		Version:   int(version),
		Timestamp: timestamp,
		ExpiresAt: expiresAt,
	}, nil
}

// envelopeInt extracts an integral number field from the envelope.
func envelopeInt(env map[string]any, field string, required bool) (int64, error) {
	raw, ok := env[field]
	if !ok || raw == nil {
		if required {
			return 0, fmt.Errorf("record envelope has no %q field", field)
		}
		return 0, nil
	}

	switch n := raw.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("record field %q is not integral: %v", field, n)
		}
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("record field %q is %T, not a number", field, raw)
	}
}
