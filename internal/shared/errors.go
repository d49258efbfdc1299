package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced document or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation violating a lifecycle invariant.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("invalid input")
	// ErrUnmatchedReference marks a line item whose code matches no raw material.
	// Triggers log and skip it; it never reaches a caller.
	ErrUnmatchedReference = errors.New("unmatched reference")
	// ErrTransactionFailure wraps store errors that aborted a unit of work.
	ErrTransactionFailure = errors.New("transaction failure")
)

// IsDomainError reports whether err belongs to the caller-facing taxonomy and
// must travel through a unit of work unchanged.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrTransactionFailure)
}

// WrapTxError classifies an error returned from a unit of work. Domain errors
// pass through; everything else is reported as a transaction failure.
func WrapTxError(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
}
