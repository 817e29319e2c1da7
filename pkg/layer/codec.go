package layer

import (
	"encoding/json"
)

// BytesCodec passes []byte values through unchanged.
type BytesCodec struct{}

func (BytesCodec) Encode(value []byte) ([]byte, error) { return value, nil }
func (BytesCodec) Decode(data []byte) ([]byte, error)  { return data, nil }

// StringCodec converts string values to and from bytes.
type StringCodec struct{}

func (StringCodec) Encode(value string) ([]byte, error) { return []byte(value), nil }
func (StringCodec) Decode(data []byte) (string, error)  { return string(data), nil }

// JSONCodec marshals arbitrary values as JSON.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(value V) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONCodec[V]) Decode(data []byte) (V, error) {
	var value V
	err := json.Unmarshal(data, &value)
	return value, err
}
