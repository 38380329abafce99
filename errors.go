package circulate

import (
	"errors"
	"fmt"

	"github.com/xraph/circulate/availability"
	"github.com/xraph/circulate/progression"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("circulate: not found")
	ErrAlreadyExists = errors.New("circulate: already exists")
	ErrInvalidInput  = errors.New("circulate: invalid input")
	ErrConflict      = errors.New("circulate: conflict")
	ErrDenied        = errors.New("circulate: denied")
	ErrInternal      = errors.New("circulate: internal error")

	// Item errors
	ErrItemNotFound    = errors.New("circulate: item not found")
	ErrItemExists      = errors.New("circulate: item already exists")
	ErrItemUnavailable = errors.New("circulate: item unavailable")

	// Reservation errors
	ErrReservationNotFound  = errors.New("circulate: reservation not found")
	ErrReservationExists    = errors.New("circulate: reservation already exists")
	ErrReservationNotActive = errors.New("circulate: reservation not active")
	ErrHandoverConfirmed    = errors.New("circulate: handover already confirmed")
	ErrAlreadyReturned      = errors.New("circulate: already returned")
	ErrLimitExceeded        = errors.New("circulate: limit exceeded")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("circulate: subscription not found")
	ErrSubscriptionExists   = errors.New("circulate: subscription already exists")
	ErrSubscriptionCanceled = errors.New("circulate: subscription is canceled")
	ErrNoActiveSubscription = errors.New("circulate: no active subscription")

	// Progression errors
	ErrProfileNotFound = progression.ErrProfileNotFound
	ErrProfileExists   = progression.ErrProfileExists
	ErrAlreadyApplied  = progression.ErrAlreadyApplied
	ErrUnknownAction   = progression.ErrUnknownAction

	// Outbox errors
	ErrEventNotFound = errors.New("circulate: event not found")

	// Store errors
	ErrStoreClosed     = errors.New("circulate: store is closed")
	ErrMigrationFailed = errors.New("circulate: migration failed")

	// Cache errors
	ErrCacheMiss = availability.ErrCacheMiss
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("circulate: validation failed for %s: %s", e.Field, e.Message)
}

// Is reports ValidationError as ErrInvalidInput.
func (e ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// DeniedError is returned when a request is well formed but refused by a
// business rule. Code is machine-readable, Reason is for humans.
type DeniedError struct {
	Code   string
	Reason string
	Err    error
}

func (e *DeniedError) Error() string {
	return "circulate: denied: " + e.Reason
}

// Is reports DeniedError as ErrDenied.
func (e *DeniedError) Is(target error) bool { return target == ErrDenied }

func (e *DeniedError) Unwrap() error { return e.Err }

// InternalError wraps an unexpected storage or infrastructure failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("circulate: %s: %v", e.Op, e.Err)
}

// Is reports InternalError as ErrInternal.
func (e *InternalError) Is(target error) bool { return target == ErrInternal }

func (e *InternalError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "circulate: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("circulate: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrNoActiveSubscription) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsConflict returns true if the request lost a race for a resource or
// collided with an existing record.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrItemUnavailable) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrItemExists) ||
		errors.Is(err, ErrReservationExists) ||
		errors.Is(err, ErrSubscriptionExists) ||
		errors.Is(err, ErrProfileExists)
}

// IsDenied returns true if a business rule refused the request.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}

// IsInvalidInput returns true if the request was malformed.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInternal returns true for unexpected infrastructure failures.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

// denied builds a DeniedError for a non-eligibility refusal.
func denied(cause error, code, reason string) error {
	return &DeniedError{Code: code, Reason: reason, Err: cause}
}

// internal wraps err as an InternalError unless it already carries a
// domain classification.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsConflict(err) || IsDenied(err) || IsInvalidInput(err) || IsInternal(err) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}
