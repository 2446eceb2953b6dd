package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrAlreadyRunning     = errors.New("operation already running")
	ErrRetriesExhausted   = errors.New("retries exhausted")
	ErrTransientIO        = errors.New("transient i/o error")
)

// InvalidTransitionError reports a rejected ledger state change.
type InvalidTransitionError struct {
	ID   string
	From LedgerStatus
	To   LedgerStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
