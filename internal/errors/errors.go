// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoMatch          = errors.New("no matching option")
	ErrCollectionFailed = errors.New("option collection failed")
	ErrPollCancelled    = errors.New("poll cancelled")
	ErrTimeout          = errors.New("operation timed out")
	ErrRateUnavailable  = errors.New("risk-free rate unavailable")
	ErrNotFound         = errors.New("not found")
	ErrDatabaseError    = errors.New("database error")
	ErrConfigInvalid    = errors.New("invalid configuration")
)

// Search failure codes.
const (
	CodeNoDates             = "NO_DATES"
	CodeNoCandidates        = "NO_CANDIDATES"
	CodeNoProfitableOptions = "NO_PROFITABLE_OPTIONS"
	CodeNoSuitableOptions   = "NO_SUITABLE_OPTIONS"
)

// SearchError is a tagged no-match outcome of an option search.
type SearchError struct {
	Code    string
	Message string
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search failed [%s]: %s", e.Code, e.Message)
}

// Is makes every SearchError match ErrNoMatch.
func (e *SearchError) Is(target error) bool {
	return target == ErrNoMatch
}

// NewSearchError creates a new SearchError.
func NewSearchError(code, message string) *SearchError {
	return &SearchError{
		Code:    code,
		Message: message,
	}
}

// SearchCode returns the failure code carried by err, or "" if err is not a SearchError.
func SearchCode(err error) string {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-source error for a ticker.
type DataError struct {
	Source  string
	Ticker  string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.Source, e.Ticker, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.Source, e.Ticker, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(source, ticker, message string, err error) *DataError {
	return &DataError{
		Source:  source,
		Ticker:  ticker,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
