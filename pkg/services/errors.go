// Package services orchestrates the AI synchronization operations behind
// the HTTP surface: prompt context assembly, provider calls, merge
// application, sync-state tracking and event publication.
package services

import (
	"errors"
	"fmt"

	"github.com/flowmuse/flowmuse/pkg/graph"
)

// Business logic errors - these indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrPromptRequired = errors.New("prompt is required")
	ErrNodeIDRequired = errors.New("nodeId is required")
	ErrInfoRequired   = errors.New("info is required")
	ErrConfigRequired = errors.New("currentConfig is required")
)

// ErrProviderNotConfigured means the selected provider is missing or its
// ambient configuration lacks required fields. The deployment is broken,
// not the request (500).
var ErrProviderNotConfigured = errors.New("provider is not configured")

// Not-found errors (404), aliased from the graph store.
var (
	ErrTabNotFound  = graph.ErrTabNotFound
	ErrNodeNotFound = graph.ErrNodeNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrPromptRequired) ||
		errors.Is(err, ErrNodeIDRequired) ||
		errors.Is(err, ErrInfoRequired) ||
		errors.Is(err, ErrConfigRequired)
}

// IsConfigurationError checks if an error means the deployment itself is
// unusable and should return HTTP 500.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrProviderNotConfigured)
}

// IsNotFoundError checks if an error refers to a missing graph entity and
// should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTabNotFound) || errors.Is(err, ErrNodeNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
