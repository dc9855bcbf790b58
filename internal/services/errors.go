package services

import (
	"errors"
)

// ErrInvalidRetention is returned for a negative retention period.
var ErrInvalidRetention = errors.New("retention days must not be negative")

// FieldError ties a validation failure to the input field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error) error {
	return &FieldError{Field: field, Err: err}
}
