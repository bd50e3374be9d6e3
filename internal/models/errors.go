package models

import (
	"errors"
	"fmt"
)

var ErrRecordNotFound = errors.New("record not found")

var ErrKeyNotFound = errors.New("key not found")

// ErrAlreadyExists signals that the schema administration service rejected a
// create because the object or field is already present. Retries must tolerate
// it, never treat it as fatal.
var ErrAlreadyExists = errors.New("already exists")

// ConfigError is a permanent configuration problem: raised immediately,
// surfaced to the caller synchronously, never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
