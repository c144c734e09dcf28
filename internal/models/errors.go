package models

import "errors"

var ErrValidation = errors.New("validation failed")

// ValidationError describes a payload that violates a field constraint.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ErrNoFieldsToUpdate is returned for update payloads that supply no field.
var ErrNoFieldsToUpdate = &ValidationError{Message: "No fields to update"}
