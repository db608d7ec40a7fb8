// Package opcode defines the instruction set of compiled task processes.
// The compiler turns task lines into OpCodes and the process stores them;
// the flat subset (Call, Restart, Nop, Salvage) can be turned back into text.
package opcode

// Cmd represents an OpCode command type.
type Cmd string

// OpCode command types.
const (
	// Call executes one task statement.
	// Args: [name string, arg1, arg2, ...] with args of type string, int32, float64 or bool
	Call Cmd = "Call"

	// Restart jumps back to the first instruction of the task.
	// Args: []
	Restart Cmd = "Restart"

	// Nop keeps a blank or comment line in the task listing.
	// Args: [text string]
	Nop Cmd = "Nop"

	// Salvage marks a task that may be recovered after a failed run.
	// It is not part of the listing.
	// Args: []
	Salvage Cmd = "Salvage"

	// Jump transfers control unconditionally.
	// Args: [target int]
	Jump Cmd = "Jump"

	// JumpIfFalse transfers control when the condition is false.
	// Args: [target int, condition bool]
	JumpIfFalse Cmd = "JumpIfFalse"

	// Gosub calls the sub-procedure starting at target.
	// Args: [target int, name string]
	Gosub Cmd = "Gosub"

	// Return leaves the current sub-procedure.
	// Args: []
	Return Cmd = "Return"
)

// OpCode represents a single instruction.
type OpCode struct {
	Cmd  Cmd
	Args []any
}

// IsFlat reports whether the command has a one-line text form.
// Structured control flow does not, so tasks containing it cannot be edited.
func (c Cmd) IsFlat() bool {
	switch c {
	case Call, Restart, Nop, Salvage:
		return true
	}
	return false
}
