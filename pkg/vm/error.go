package vm

import (
	"fmt"

	"github.com/zurustar/unitask/pkg/task"
)

// ErrorType represents the type of process error.
type ErrorType string

const (
	// Editing errors
	ErrorFrozen       ErrorType = "FROZEN"
	ErrorNotSuspended ErrorType = "NOT_SUSPENDED"
	ErrorNotFlat      ErrorType = "NOT_FLAT"
	ErrorCompile      ErrorType = "COMPILE"

	// Execution errors
	ErrorEnded            ErrorType = "ENDED"
	ErrorStackOverflow    ErrorType = "STACK_OVERFLOW"
	ErrorStackUnderflow   ErrorType = "STACK_UNDERFLOW"
	ErrorInvalidOperation ErrorType = "INVALID_OPERATION"
	ErrorStatementFailed  ErrorType = "STATEMENT_FAILED"
)

// ProcessError represents an error raised by a process.
type ProcessError struct {
	Type    ErrorType
	Process string // process name
	PC      int    // instruction index if available, -1 otherwise
	Message string
	Err     error // underlying error, if any
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("[%s] process %q: %s", e.Type, e.Process, e.Message)
	if e.PC >= 0 {
		msg += fmt.Sprintf(" at instruction %d", e.PC)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the task sentinel matching the error type and the
// underlying error, so errors.Is(err, task.ErrAlreadyFrozen) works.
func (e *ProcessError) Unwrap() []error {
	var errs []error
	switch e.Type {
	case ErrorFrozen:
		errs = append(errs, task.ErrAlreadyFrozen)
	case ErrorNotSuspended, ErrorNotFlat:
		errs = append(errs, task.ErrNotEditable)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsFatal returns true if the error ends the process.
func (e *ProcessError) IsFatal() bool {
	switch e.Type {
	case ErrorStackOverflow, ErrorStackUnderflow, ErrorInvalidOperation, ErrorStatementFailed:
		return true
	default:
		return false
	}
}

// newProcessError creates a ProcessError without instruction information.
func newProcessError(errType ErrorType, process, message string, err error) *ProcessError {
	return &ProcessError{
		Type:    errType,
		Process: process,
		PC:      -1,
		Message: message,
		Err:     err,
	}
}

// newProcessErrorAt creates a ProcessError for the instruction at pc.
func newProcessErrorAt(errType ErrorType, process string, pc int, message string, err error) *ProcessError {
	return &ProcessError{
		Type:    errType,
		Process: process,
		PC:      pc,
		Message: message,
		Err:     err,
	}
}
