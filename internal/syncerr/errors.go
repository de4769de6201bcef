// Package syncerr defines the failure classes a contact sync job can end with.
// The watcher decides retry behaviour from the class alone.
package syncerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransient     Kind = "transient_provider"
	KindBatchWrite    Kind = "batch_write"
	KindUnknown       Kind = "unknown"
)

// ConfigurationError means the sync cannot run as configured. Never retried.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransientProviderError wraps a network, rate-limit or decoding failure while fetching.
type TransientProviderError struct {
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TransientProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// BatchWriteError wraps a failed bulk upsert. Batches before Batch stay committed.
type BatchWriteError struct {
	Batch int // zero-based batch index
	Size  int
	Err   error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("bulk upsert of batch %d (%d contacts) failed: %v", e.Batch, e.Size, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

func Configuration(reason string, err error) error {
	return &ConfigurationError{Reason: reason, Err: err}
}

func Configurationf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func Transient(provider string, statusCode int, err error) error {
	return &TransientProviderError{Provider: provider, StatusCode: statusCode, Err: err}
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsTransient(err error) bool {
	var te *TransientProviderError
	return errors.As(err, &te)
}

func IsBatchWrite(err error) bool {
	var be *BatchWriteError
	return errors.As(err, &be)
}

// IsRetryable reports whether the retry policy applies. Unclassified errors
// (store reads, result writes) are treated as transient.
func IsRetryable(err error) bool {
	return err != nil && !IsConfiguration(err)
}

// KindOf classifies err for persistence on the job row and for metrics labels.
func KindOf(err error) Kind {
	switch {
	case IsConfiguration(err):
		return KindConfiguration
	case IsTransient(err):
		return KindTransient
	case IsBatchWrite(err):
		return KindBatchWrite
	default:
		return KindUnknown
	}
}
