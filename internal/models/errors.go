package models

import (
	"errors"
	"fmt"
)

// ErrorType categorizes replay errors for appropriate handling.
type ErrorType int

const (
	// ErrorTypeCorruption marks an unparseable or internally inconsistent
	// record. Fatal for reconstruction; there is no safe partial result.
	ErrorTypeCorruption ErrorType = iota
	// ErrorTypeTransient marks an I/O failure the caller may retry. The
	// engine guarantees no state was committed before the failure.
	ErrorTypeTransient
	// ErrorTypeNoValidBase marks reaching the end of the source in an
	// inconsistent state (e.g. a half-written compaction record).
	ErrorTypeNoValidBase
)

// String returns the string representation of ErrorType.
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeCorruption:
		return "Corruption"
	case ErrorTypeTransient:
		return "Transient"
	case ErrorTypeNoValidBase:
		return "NoValidBase"
	default:
		return "Unknown"
	}
}

// ReplayError is an error from rollout reconstruction with categorization.
type ReplayError struct {
	Type      ErrorType `json:"type"`
	Retryable bool      `json:"retryable"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
}

// Error implements the error interface.
func (e *ReplayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *ReplayError) Unwrap() error {
	return e.Err
}

// NewCorruptionError creates a fatal corruption error.
func NewCorruptionError(message string, cause error) *ReplayError {
	return &ReplayError{
		Type:      ErrorTypeCorruption,
		Retryable: false,
		Message:   message,
		Err:       cause,
	}
}

// NewTransientError creates a retryable I/O error.
func NewTransientError(message string, cause error) *ReplayError {
	return &ReplayError{
		Type:      ErrorTypeTransient,
		Retryable: true,
		Message:   message,
		Err:       cause,
	}
}

// NewNoValidBaseError creates a fatal no-valid-base error.
func NewNoValidBaseError(message string) *ReplayError {
	return &ReplayError{
		Type:      ErrorTypeNoValidBase,
		Retryable: false,
		Message:   message,
	}
}

// IsCorruption reports whether err is a corruption replay error.
func IsCorruption(err error) bool {
	var re *ReplayError
	return errors.As(err, &re) && re.Type == ErrorTypeCorruption
}

// IsTransient reports whether err is a retryable transient replay error.
func IsTransient(err error) bool {
	var re *ReplayError
	return errors.As(err, &re) && re.Type == ErrorTypeTransient
}
