// Package shared contains the error taxonomy and small value types used by
// every progression domain package. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, matched with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation         = errors.New("validation error")
	ErrInvalidID          = errors.New("invalid ID")
	ErrEmptyValue         = errors.New("value cannot be empty")
	ErrNegativeValue      = errors.New("value cannot be negative")
	ErrValueOutOfRange    = errors.New("value out of range")
	ErrInvariantViolation = errors.New("invariant violation")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError is a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "reward", "streak", "goal"
	Op      string // Operation that failed, e.g., "Grant", "SetProgress"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches both the kind and the wrapped error.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Invariant builds an invariant-violation error for a rejected input.
func Invariant(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// Reward domain errors
var (
	ErrNegativeGrant  = NewDomainError("reward", "Grant", ErrInvariantViolation, "grant amount cannot be negative")
	ErrUnknownSource  = NewDomainError("reward", "Grant", ErrInvariantViolation, "unknown reward source")
	ErrInvalidUserID  = NewDomainError("reward", "Validate", ErrInvalidID, "user ID cannot be empty")
	ErrSnapshotAbsent = NewDomainError("reward", "FindSnapshot", ErrNotFound, "progression snapshot not found")
)

// Streak domain errors
var (
	ErrStreakNotFound     = NewDomainError("streak", "Find", ErrNotFound, "streak state not found")
	ErrInvalidFreezeCount = NewDomainError("streak", "AddFreezeTokens", ErrInvariantViolation, "freeze token count must be positive")
)

// Achievement domain errors
var (
	ErrAchievementNotFound  = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrAchievementCodeTaken = NewDomainError("achievement", "Create", ErrAlreadyExists, "achievement code already exists")
	ErrNegativeProgress     = NewDomainError("achievement", "UpdateProgress", ErrInvariantViolation, "progress cannot be negative")
)

// Goal domain errors
var (
	ErrGoalNotFound      = NewDomainError("goal", "Find", ErrNotFound, "goal not found")
	ErrGoalNotActive     = NewDomainError("goal", "Transition", ErrInvalidState, "goal is not active")
	ErrNegativeGoalValue = NewDomainError("goal", "SetProgress", ErrInvariantViolation, "goal value cannot be negative")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidState checks if the error is a state machine rejection.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrStateTransition)
}

// IsValidation checks if the error is a rejected input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvariantViolation)
}

// IsRetryable checks if the whole operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
