// Package shared contains common domain types and the error taxonomy used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"time"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")

	// Business rule errors
	ErrCooldownActive = errors.New("cooldown active")
	ErrRateLimited    = errors.New("rate limited")

	// Transport errors. Only these are recovered locally by queueing the
	// intended write; everything else is surfaced to the caller.
	ErrTransport = errors.New("remote store unreachable")
	ErrTimeout   = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "member", "attendance", "outbox"
	Op      string // operation that failed, e.g. "Register", "Sync"
	Kind    error  // base error type for errors.Is() checking
	Message string // human-readable message
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
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

// CooldownError is returned when a check-in is rejected because the minimum
// interval since the member's previous check-in has not elapsed yet.
// It carries the remaining whole minutes for display at the kiosk.
type CooldownError struct {
	RemainingMinutes int
}

// Error implements the error interface.
func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: try again in %d min", e.RemainingMinutes)
}

// Is makes errors.Is(err, ErrCooldownActive) work.
func (e *CooldownError) Is(target error) bool {
	return errors.Is(target, ErrCooldownActive)
}

// RateLimitedError is returned when a key has exhausted its attempt budget.
// RetryAfter is how long remains until the block lifts.
type RateLimitedError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) work.
func (e *RateLimitedError) Is(target error) bool {
	return errors.Is(target, ErrRateLimited)
}

// TransportError marks a failure to reach the remote store. It is the only
// error kind the check-in path recovers from by enqueueing the write.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) work.
func (e *TransportError) Is(target error) bool {
	return errors.Is(target, ErrTransport)
}

// Transport wraps err as a TransportError for the given operation.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// ValidationError carries field-level context for fail-fast rejection.
// Malformed input never enters the offline queue.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) work.
func (e *ValidationError) Is(target error) bool {
	return errors.Is(target, ErrValidation)
}

// Member domain errors
var (
	ErrMemberNotFound    = NewDomainError("member", "Find", ErrNotFound, "member not found")
	ErrInvalidMemberCode = NewDomainError("member", "Validate", ErrValidation, "invalid member code")
	ErrAmbiguousCode     = NewDomainError("member", "Find", ErrInvalidState, "member code matches more than one member")
)

// ErrInvalidState marks an entity in a state that forbids the operation.
var ErrInvalidState = errors.New("invalid state")

// Clock returns the current time; injectable for tests.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}
