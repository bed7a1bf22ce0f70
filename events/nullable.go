package events

import (
	"bytes"
	"encoding/json"
)

// Nullable distinguishes an absent field from an explicit JSON null. Use it
// with the `omitzero` tag option: the zero value is omitted, Null() encodes
// as null and Value(v) encodes v.
type Nullable[T any] struct {
	value T
	set   bool
	null  bool
}

func Value[T any](v T) Nullable[T] {
	return Nullable[T]{value: v, set: true}
}

func Null[T any]() Nullable[T] {
	return Nullable[T]{set: true, null: true}
}

func (n Nullable[T]) IsZero() bool { return !n.set }

func (n Nullable[T]) IsNull() bool { return n.set && n.null }

// Get returns the value and whether one is present (set and not null).
func (n Nullable[T]) Get() (T, bool) {
	return n.value, n.set && !n.null
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.set || n.null {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		n.value = zero
		n.null = true
		return nil
	}
	n.null = false
	return json.Unmarshal(data, &n.value)
}
