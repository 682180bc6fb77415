// Package errs defines the error taxonomy shared by the labeling pipeline,
// the label store and the corpus operations.
//
// Every error type wraps its cause so callers can use errors.Is and errors.As
// on the underlying error as well as on the taxonomy type itself.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports bad or missing caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NotFoundError reports that a referenced image or label does not exist.
type NotFoundError struct {
	Kind string // "image" or "label"
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ModelError reports a transport or protocol failure talking to the
// inference endpoint. Body holds the response body when one was received.
type ModelError struct {
	Op   string
	Body string
	Err  error
}

func (e *ModelError) Error() string {
	msg := e.Op + ": model request failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += " (body: " + e.Body + ")"
	}
	return msg
}

func (e *ModelError) Unwrap() error { return e.Err }

// StorageError reports a local filesystem failure.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Validation is a shorthand constructor for a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsModel(err error) bool {
	var target *ModelError
	return errors.As(err, &target)
}

func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
