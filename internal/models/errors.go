package models

import (
	"errors"
	"fmt"
)

// ValidationError represents an out-of-range or ill-typed argument
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// NotFoundError represents a missing file, archive or (year, month) key
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

// ComputationError represents an aggregation over an empty selection
type ComputationError struct {
	Operation string
	Message   string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *ComputationError) IsTransient() bool {
	return false
}

// IOError represents a read or write failure not classified otherwise
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsTransient returns true: the same I/O may succeed when retried
func (e *IOError) IsTransient() bool {
	return true
}

// ErrorClass is a coarse error label used in logs, metrics and HTTP status mapping
type ErrorClass string

const (
	ClassNotFound    ErrorClass = "not_found"
	ClassValidation  ErrorClass = "validation"
	ClassComputation ErrorClass = "computation"
	ClassIO          ErrorClass = "io"
	ClassUnknown     ErrorClass = "unknown"
)

// Classify maps an error chain to its ErrorClass
func Classify(err error) ErrorClass {
	var (
		notFound    *NotFoundError
		validation  *ValidationError
		computation *ComputationError
		ioErr       *IOError
	)

	switch {
	case err == nil:
		return ClassUnknown
	case errors.As(err, &notFound):
		return ClassNotFound
	case errors.As(err, &validation):
		return ClassValidation
	case errors.As(err, &computation):
		return ClassComputation
	case errors.As(err, &ioErr):
		return ClassIO
	default:
		return ClassUnknown
	}
}
