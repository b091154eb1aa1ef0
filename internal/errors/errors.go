// Package errors defines the typed errors that cross the command bus.
// Each domain error wraps an underlying cause; IngestError also reports
// whether the indexer loop should keep running after logging it.
package errors

import (
	"fmt"
	"time"

	"github.com/standardbeagle/docstream/internal/types"
)

// ErrorType classifies the subsystem that produced an error.
type ErrorType string

const (
	ErrorTypeIngest   ErrorType = "ingest"
	ErrorTypeIndex    ErrorType = "index"
	ErrorTypeStore    ErrorType = "store"
	ErrorTypeQuery    ErrorType = "query"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypePersist  ErrorType = "persist"
	ErrorTypeInternal ErrorType = "internal"
)

// IngestError represents a failure while admitting a document into the
// pipeline: JSON parse failures are deliberately non-fatal (Recoverable),
// but they are still recorded so operators can see how often the
// sort-key extractor is falling back to a random key.
type IngestError struct {
	Type        ErrorType
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewIngestError creates a new ingest error with context.
func NewIngestError(op string, err error) *IngestError {
	return &IngestError{
		Type:       ErrorTypeIngest,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithRecoverable marks the error as recoverable.
func (e *IngestError) WithRecoverable(recoverable bool) *IngestError {
	e.Recoverable = recoverable
	return e
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

func (e *IngestError) Unwrap() error { return e.Underlying }

// IsRecoverable reports whether the indexer loop should continue after
// logging this error.
func (e *IngestError) IsRecoverable() bool { return e.Recoverable }

// StoreError represents a failure reading or writing the document store
// (compression, decompression, file I/O on store.data).
type StoreError struct {
	Type       ErrorType
	Key        types.DocumentKey
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewStoreError creates a new document-store error.
func NewStoreError(key types.DocumentKey, op string, err error) *StoreError {
	return &StoreError{
		Type:       ErrorTypeStore,
		Key:        key,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed for %s: %v", e.Operation, e.Key, e.Underlying)
}

func (e *StoreError) Unwrap() error { return e.Underlying }

// QueryError represents a failure executing a Filter command.
type QueryError struct {
	Type       ErrorType
	Query      string
	Underlying error
	Timestamp  time.Time
}

// NewQueryError creates a new query-execution error.
func NewQueryError(query string, err error) *QueryError {
	return &QueryError{
		Type:       ErrorTypeQuery,
		Query:      query,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed for %q: %v", e.Query, e.Underlying)
}

func (e *QueryError) Unwrap() error { return e.Underlying }

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error.
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// PersistError represents a failure loading or saving a sidecar file
// during startup or shutdown. Callers treat it as non-fatal on load
// (fall back to empty state) and log it on save.
type PersistError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewPersistError creates a new persistence error.
func NewPersistError(op, path string, err error) *PersistError {
	return &PersistError{
		Type:       ErrorTypePersist,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

func (e *PersistError) Unwrap() error { return e.Underlying }

// MultiError aggregates several independent failures, e.g. when Clear
// fails to remove more than one sidecar file.
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, dropping nil entries.
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }
