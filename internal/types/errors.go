package types

import (
	"errors"
	"fmt"
)

var (
	// ErrSystemPaused rejects submissions while the admission gate is closed
	ErrSystemPaused = errors.New("system is paused")
	// ErrBackpressure means the actor channel stayed full; retry later
	ErrBackpressure = errors.New("task channel is full")
	// ErrTaskNotFound is returned for keys the store has never seen
	ErrTaskNotFound = errors.New("task not found")
	// ErrConfiguration is matched by every ConfigurationError
	ErrConfiguration = errors.New("configuration error")
	// ErrActorStopped is returned once the request actor has shut down
	ErrActorStopped = errors.New("request actor stopped")
	// ErrStaleAttempt means the addressed attempt is no longer the live current record
	ErrStaleAttempt = errors.New("attempt is no longer current")
)

// ConfigurationError reports a malformed or incomplete request
type ConfigurationError struct {
	Field  string
	Reason string
}

func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid request: %s", e.Reason)
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// BackendError wraps a failure reported by a proving backend
type BackendError struct {
	ProofType ProofType
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.ProofType, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
