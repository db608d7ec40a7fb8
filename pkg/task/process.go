// Package task implements editing and dry-run prediction of unit tasks.
//
// A task is a flat list of statement lines bound to one suspended process.
// An Editor holds exclusive edit rights on the process for its whole
// lifetime; a Predictor walks the list without executing anything and
// reports each statement that would run to a Hook.
package task

import "errors"

var (
	// ErrAlreadyFrozen is returned when a process is already held by another editor.
	ErrAlreadyFrozen = errors.New("process is already being edited")

	// ErrNotEditable is returned when a process cannot be loaded as a flat task.
	ErrNotEditable = errors.New("process cannot be edited as a task")
)

// Process is the suspended execution context a task belongs to.
type Process interface {
	// Freeze grants owner exclusive edit rights. It must fail fast with
	// ErrAlreadyFrozen when another owner holds them.
	Freeze(owner any) error

	// Unfreeze releases edit rights.
	Unfreeze()

	// LoadInstructions returns the task listing and the index of the next
	// instruction to execute. It fails with ErrNotEditable when the process
	// is not a suspended flat task.
	LoadInstructions() (commands []string, pc int, err error)

	// SaveInstructions compiles the listing back into the process.
	// salvageable controls whether the compiled task keeps a recovery marker.
	SaveInstructions(commands []string, pc int, salvageable bool) error

	// InSubroutineCall reports whether the process is stopped inside a
	// called sub-procedure rather than at the top level of its task.
	InSubroutineCall() bool
}

// Formatter is implemented by processes that can render a line in the
// canonical spelling it reads back with after being saved.
type Formatter interface {
	Format(line string) string
}
