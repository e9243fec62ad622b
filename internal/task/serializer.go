package task

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Serializer converts values to and from their wire representation.
// Decode(Encode(x)) must equal x for every legal x.
type Serializer[T any] interface {
	Encode(value T) (string, error)
	Decode(payload string) (T, error)
}

type jsonSerializer[T any] struct{}

// JSON returns a serializer backed by encoding/json.
func JSON[T any]() Serializer[T] {
	return jsonSerializer[T]{}
}

func (jsonSerializer[T]) Encode(value T) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("json encode: %w", err)
	}
	return string(b), nil
}

func (jsonSerializer[T]) Decode(payload string) (T, error) {
	var value T
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return value, fmt.Errorf("json decode: %w", err)
	}
	return value, nil
}

type protoSerializer[M proto.Message] struct {
	newMessage func() M
}

// Proto returns a serializer for protobuf messages using the protojson
// encoding. newMessage must return a fresh, empty message.
func Proto[M proto.Message](newMessage func() M) Serializer[M] {
	return protoSerializer[M]{newMessage: newMessage}
}

func (s protoSerializer[M]) Encode(value M) (string, error) {
	b, err := protojson.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("protojson encode: %w", err)
	}
	return string(b), nil
}

func (s protoSerializer[M]) Decode(payload string) (M, error) {
	msg := s.newMessage()
	if err := protojson.Unmarshal([]byte(payload), msg); err != nil {
		var zero M
		return zero, fmt.Errorf("protojson decode: %w", err)
	}
	return msg, nil
}

type int64Serializer struct {
	inner Serializer[*wrapperspb.Int64Value]
}

// Int64 returns a serializer for int64 values carried as a protobuf Int64Value.
func Int64() Serializer[int64] {
	return int64Serializer{inner: Proto(func() *wrapperspb.Int64Value { return &wrapperspb.Int64Value{} })}
}

func (s int64Serializer) Encode(value int64) (string, error) {
	return s.inner.Encode(wrapperspb.Int64(value))
}

func (s int64Serializer) Decode(payload string) (int64, error) {
	msg, err := s.inner.Decode(payload)
	if err != nil {
		return 0, err
	}
	return msg.GetValue(), nil
}
