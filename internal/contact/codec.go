package contact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidField is returned by Decode when a known field holds a value
// that is neither a string nor null.
var ErrInvalidField = errors.New("invalid field type")

// Decode parses a JSON object into a Record, checking every known field.
// Missing keys decode as nil and unknown keys are ignored.
func Decode(data []byte) (*Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("record is not a JSON object")
	}

	r := &Record{}
	for _, f := range Fields {
		v, ok := raw[f.Key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fmt.Errorf("%w: %s must be a string or null, got %s", ErrInvalidField, f.Key, v)
		}
		r.set(f.Key, &s)
	}
	return r, nil
}

// Encode returns the JSON form of the record.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		r = &Record{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}
	return data, nil
}
