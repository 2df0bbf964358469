package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is matched by every *ReferenceError.
	ErrNotFound = errors.New("not found")
	// ErrPriorStateRequired is returned when an update or delete arrives
	// without the snapshot of the transaction being replaced.
	ErrPriorStateRequired = errors.New("prior transaction state required")
	// ErrIntegrityMismatch is matched by every *IntegrityMismatch.
	ErrIntegrityMismatch = errors.New("balance integrity mismatch")
)

// ValidationError reports malformed or rule-violating input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ReferenceError reports a referenced entity that does not exist.
type ReferenceError struct {
	Entity string
	ID     string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *ReferenceError) Unwrap() error { return ErrNotFound }

// NotFound builds a ReferenceError.
func NotFound(entity, id string) error {
	return &ReferenceError{Entity: entity, ID: id}
}

// IntegrityMismatch reports a cached balance that differs from the one
// derived from the transaction log by more than the allowed tolerance.
type IntegrityMismatch struct {
	AccountID  string
	Expected   decimal.Decimal
	Actual     decimal.Decimal
	Difference decimal.Decimal
}

func (e *IntegrityMismatch) Error() string {
	return fmt.Sprintf("account %s: cached balance %s, computed %s (diff %s)",
		e.AccountID, e.Expected.StringFixed(2), e.Actual.StringFixed(2), e.Difference.StringFixed(2))
}

func (e *IntegrityMismatch) Unwrap() error { return ErrIntegrityMismatch }
