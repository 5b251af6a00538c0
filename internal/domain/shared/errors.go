// Package shared contains the domain errors and events used across all domain
// packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
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
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Eligibility errors (streak saver)
	ErrEligibility = errors.New("not eligible")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "habit", "holiday", "saver"
	Op      string // Operation that failed, e.g., "ToggleTask", "Cancel"
	Kind    error  // Base error type for errors.Is() checking
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

// ══════════════════════════════════════════════════════════════════════════════
// TYPED ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ValidationError reports input that references something the record does not contain,
// e.g. a toggle for a task id the habit does not own.
func ValidationError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// NotFoundError reports a missing habit, holiday, group or inventory record.
func NotFoundError(domain, op, id string) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf("%s %q not found", domain, id))
}

// ConcurrencyError reports a write applied against a stale snapshot.
func ConcurrencyError(domain, op string, expectedVersion int64) *DomainError {
	return NewDomainError(domain, op, ErrConcurrentModification,
		fmt.Sprintf("record changed since version %d", expectedVersion))
}

// EligibilityReason explains why a streak saver cannot be used.
type EligibilityReason string

const (
	ReasonNoSavers     EligibilityReason = "no_savers"
	ReasonWindowClosed EligibilityReason = "window_closed"
	ReasonAlreadyUsed  EligibilityReason = "already_used"
	ReasonNoBreak      EligibilityReason = "no_break"
)

// Message returns the user-facing text for the reason.
func (r EligibilityReason) Message() string {
	switch r {
	case ReasonNoSavers:
		return "no savers available"
	case ReasonWindowClosed:
		return "window closed"
	case ReasonAlreadyUsed:
		return "already used"
	case ReasonNoBreak:
		return "no broken streak to save"
	default:
		return string(r)
	}
}

// CanAcquireMore reports whether the caller can resolve the error by acquiring more savers.
func (r EligibilityReason) CanAcquireMore() bool {
	return r == ReasonNoSavers
}

// EligibilityError is returned when a streak saver is not usable.
type EligibilityError struct {
	Reason  EligibilityReason
	HabitID string
}

// Error implements the error interface.
func (e *EligibilityError) Error() string {
	return fmt.Sprintf("saver.Apply: habit %s: %s", e.HabitID, e.Reason.Message())
}

// Is makes errors.Is(err, ErrEligibility) match every EligibilityError.
func (e *EligibilityError) Is(target error) bool {
	return target == ErrEligibility
}

// NewEligibilityError creates a new EligibilityError.
func NewEligibilityError(habitID string, reason EligibilityReason) *EligibilityError {
	return &EligibilityError{Reason: reason, HabitID: habitID}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// Habit domain errors
var (
	ErrHabitNotFound    = NewDomainError("habit", "Find", ErrNotFound, "habit not found")
	ErrUnknownTask      = NewDomainError("habit", "Toggle", ErrValidation, "task does not belong to habit")
	ErrInvalidFrequency = NewDomainError("habit", "Validate", ErrInvalidInput, "invalid frequency")
	ErrInvalidHabitKind = NewDomainError("habit", "Validate", ErrInvalidInput, "invalid habit kind")
	ErrFutureDate       = NewDomainError("habit", "Toggle", ErrValueOutOfRange, "date is in the future")
	ErrBeforeCreation   = NewDomainError("habit", "Toggle", ErrValueOutOfRange, "date precedes habit creation")
	ErrEmptyHabitName   = NewDomainError("habit", "Validate", ErrEmptyValue, "habit name is required")
)

// Holiday domain errors
var (
	ErrHolidayNotFound     = NewDomainError("holiday", "Find", ErrNotFound, "holiday period not found")
	ErrInvalidHolidayRange = NewDomainError("holiday", "Validate", ErrValueOutOfRange, "start date must not be after end date")
	ErrHolidayNotActive    = NewDomainError("holiday", "Cancel", ErrStateTransition, "holiday period is not active")
	ErrEmptyFreeze         = NewDomainError("holiday", "Validate", ErrEmptyValue, "holiday period freezes nothing")
)

// Saver domain errors
var (
	ErrInventoryNotFound  = NewDomainError("saver", "FindInventory", ErrNotFound, "saver inventory not found")
	ErrBreakNotFound      = NewDomainError("saver", "FindBreak", ErrNotFound, "break event not found")
	ErrInvalidGrantAmount = NewDomainError("saver", "Grant", ErrNegativeValue, "grant amount must be positive")
)

// Group domain errors
var (
	ErrGroupNotFound  = NewDomainError("group", "Find", ErrNotFound, "group not found")
	ErrNotGroupMember = NewDomainError("group", "Toggle", ErrValidation, "user is not a group member")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsEligibility checks if the error is a streak saver eligibility error.
func IsEligibility(err error) bool {
	return errors.Is(err, ErrEligibility)
}

// IsConcurrency checks if the error was caused by a stale snapshot.
func IsConcurrency(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
