package cache

import "github.com/vmihailenco/msgpack/v5"

// Codec turns cached results into bytes and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

// NewMsgpackCodec returns the default codec.
func NewMsgpackCodec() Codec {
	return msgpackCodec{}
}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// Encode marshals v with codec.
func Encode[T any](codec Codec, v T) ([]byte, error) {
	return codec.Marshal(v)
}

// Decode unmarshals data into a fresh T.
func Decode[T any](codec Codec, data []byte) (T, error) {
	var out T
	if err := codec.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
