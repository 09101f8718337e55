// Package optional provides a field that distinguishes "not provided" from
// "explicitly cleared" from "set to a value". Update inputs use it so an
// omitted key leaves the stored value alone while null clears it.
package optional

import (
	"encoding/json"

	"spaces/api/internal/codec"
)

type state uint8

const (
	absent state = iota
	null
	present
)

type Field[T any] struct {
	state state
	value T
}

func Absent[T any]() Field[T] { return Field[T]{} }

func Null[T any]() Field[T] { return Field[T]{state: null} }

func Of[T any](v T) Field[T] { return Field[T]{state: present, value: v} }

// FromPtr maps nil to Null and anything else to Of.
func FromPtr[T any](v *T) Field[T] {
	if v == nil {
		return Null[T]()
	}
	return Of(*v)
}

// IsZero reports an absent field, letting `omitzero` drop it when encoding.
func (f Field[T]) IsZero() bool { return f.state == absent }

func (f Field[T]) IsNull() bool { return f.state == null }

// Provided is true for both null and a value.
func (f Field[T]) Provided() bool { return f.state != absent }

func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == present
}

// Or returns the value when present, otherwise fallback.
func (f Field[T]) Or(fallback T) T {
	if f.state == present {
		return f.value
	}
	return fallback
}

// Variable is the form the field takes in a request variables map. The
// boolean is false when the key should be omitted entirely.
func (f Field[T]) Variable() (any, bool) {
	switch f.state {
	case present:
		return f.value, true
	case null:
		return nil, true
	default:
		return nil, false
	}
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != present {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Of(v)
	return nil
}

func (f Field[T]) MarshalCBOR() ([]byte, error) {
	if f.state != present {
		return []byte{0xf6}, nil
	}
	return codec.MarshalCBOR(f.value)
}

func (f *Field[T]) UnmarshalCBOR(data []byte) error {
	if codec.Raw(data).IsNull() {
		*f = Null[T]()
		return nil
	}
	var v T
	if err := codec.UnmarshalCBOR(data, &v); err != nil {
		return err
	}
	*f = Of(v)
	return nil
}

// Put adds the field to vars under key unless it is absent.
func Put[T any](vars map[string]any, key string, f Field[T]) {
	if v, ok := f.Variable(); ok {
		vars[key] = v
	}
}
