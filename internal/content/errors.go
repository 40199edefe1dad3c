package content

import (
	"errors"
	"fmt"
)

// FailureKind splits collaborator failures into the two classes the
// orchestrator retries differently: transient transport trouble versus
// output that decoded but violated the contract.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailureMalformed FailureKind = "malformed"
)

// CollaboratorError wraps any generator or evaluator failure.
type CollaboratorError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("content: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func Transient(op string, err error) *CollaboratorError {
	return &CollaboratorError{Kind: FailureTransient, Op: op, Err: err}
}

func Malformed(op string, err error) *CollaboratorError {
	return &CollaboratorError{Kind: FailureMalformed, Op: op, Err: err}
}

// IsTransient reports whether a retry with the same inputs could succeed.
func IsTransient(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce) && ce.Kind == FailureTransient
}

// IsMalformed reports a contract violation in otherwise-successful output.
func IsMalformed(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce) && ce.Kind == FailureMalformed
}
