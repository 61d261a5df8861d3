package serializer

import (
	"encoding/json"
	"fmt"
)

// Format tags prepended to every serialized value. The tag lets any backend
// round-trip values it never inspected: JSON-shaped data is stored as JSON,
// everything else as opaque bytes.
const (
	TagJSON   byte = 'J'
	TagOpaque byte = 'P'
)

// SerializationError indicates a value could not be encoded or decoded
type SerializationError struct {
	Op  string // "marshal" or "unmarshal"
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failed during %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Marshal encodes a value into its tagged wire form. Byte slices are stored
// verbatim under the opaque tag; everything else must be representable as
// JSON (strings, numbers, booleans, nil, slices, maps and structs).
func Marshal(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		out := make([]byte, 0, len(b)+1)
		out = append(out, TagOpaque)
		return append(out, b...), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Op: "marshal", Err: err}
	}

	out := make([]byte, 0, len(data)+1)
	out = append(out, TagJSON)
	return append(out, data...), nil
}

// Unmarshal decodes a tagged payload produced by Marshal. Payloads without a
// known tag are treated as legacy opaque bytes and returned as-is.
func Unmarshal(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, &SerializationError{Op: "unmarshal", Err: fmt.Errorf("empty payload")}
	}

	switch data[0] {
	case TagJSON:
		var v any
		if err := json.Unmarshal(data[1:], &v); err != nil {
			return nil, &SerializationError{Op: "unmarshal", Err: err}
		}
		return v, nil
	case TagOpaque:
		out := make([]byte, len(data)-1)
		copy(out, data[1:])
		return out, nil
	default:
		// Legacy payload written before tagging existed
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
}
