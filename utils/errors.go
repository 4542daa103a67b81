package utils

import (
	"errors"
	"fmt"
)

// Classification is the machine-readable failure class carried across
// component boundaries. The orchestrator switches on it to decide
// between action-required, failed, and compensation-required.
type Classification string

const (
	ClassNetwork             Classification = "network"
	ClassEndpointUnavailable Classification = "endpoint_unavailable"
	ClassRetryable           Classification = "retryable"
	ClassActionRequired      Classification = "action_required"
	ClassTerminal            Classification = "terminal"
	ClassValidationTimeout   Classification = "validation_timeout"
	ClassLockContention      Classification = "lock_contention"
)

// LedgerError wraps a ledger engine result or transport failure with
// its classification tag.
type LedgerError struct {
	Class   Classification
	Code    string
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Class, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func NewLedgerError(class Classification, code, message string) *LedgerError {
	return &LedgerError{Class: class, Code: code, Message: message}
}

func WrapLedgerError(class Classification, err error) *LedgerError {
	return &LedgerError{Class: class, Message: err.Error(), Err: err}
}

// ClassOf extracts the classification from an error chain. Unknown
// errors are reported as terminal so nothing silently retries them.
func ClassOf(err error) Classification {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Class
	}
	return ClassTerminal
}

var (
	ErrLockNotAcquired    = errors.New("purchase is locked by another worker, try later")
	ErrFundsHashConflict  = errors.New("funds already confirmed with a different hash")
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrInvalidTransition  = errors.New("invalid purchase status transition")
	ErrCompensationExists = errors.New("compensation already exists for purchase")
	ErrNotApproved        = errors.New("compensation is not approved")
)
