package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition      = errors.New("illegal saga transition")
	ErrInvalidTransaction     = errors.New("invalid transaction")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrConcurrentModification = errors.New("transaction modified concurrently")
	ErrDuplicateSerialNumber  = errors.New("duplicate serial number")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	Operation string
	SagaState SagaState
	Status    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed from saga state %s (status %s)", e.Operation, e.SagaState, e.Status)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
