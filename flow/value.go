package flow

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// EncodeValue serializes a runtime value to canonical JSON bytes.
//
// Canonical means: object keys sorted lexicographically, no insignificant
// whitespace. Two equal values always encode to identical bytes, which is
// what makes captured timeline outputs comparable across runs and replays.
func EncodeValue(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return data, nil
}

// DecodeValue deserializes canonical JSON bytes back into a runtime value.
// Objects decode to map[string]any, arrays to []any, numbers to float64.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// MustEncodeValue is EncodeValue for values known to be JSON-encodable.
// It panics on failure and exists for literals in tests and defaults.
func MustEncodeValue(v any) []byte {
	data, err := EncodeValue(v)
	if err != nil {
		panic(err)
	}
	return data
}
