package models

import (
	"bytes"
	"encoding/json"
)

// Optional records whether a JSON field was present in a request body
// separately from its value. An explicit null is Set but not Valid.
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

func Some[T any](value T) Optional[T] {
	return Optional[T]{Set: true, Valid: true, Value: value}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Valid = false
		var zero T
		o.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Supplied reports whether the field carries a usable value. Absent and null
// fields are both "not supplied".
func (o Optional[T]) Supplied() bool {
	return o.Set && o.Valid
}
