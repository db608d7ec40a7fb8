package task

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/zurustar/unitask/pkg/compiler"
	"github.com/zurustar/unitask/pkg/logger"
)

// CursorBehaviour selects where Replace leaves the cursor.
type CursorBehaviour int

const (
	// DefaultCursor keeps the cursor on the instruction it named; a cursor
	// inside the replaced range moves to its start.
	DefaultCursor CursorBehaviour = iota
	// PlaceCursorAfter puts the cursor right after the inserted lines.
	PlaceCursorAfter
)

// PCBehaviour selects where Replace leaves the PC.
type PCBehaviour int

const (
	// DefaultPC keeps the PC on the instruction it named; a PC inside the
	// replaced range moves to its start.
	DefaultPC PCBehaviour = iota
	// PlacePCBefore keeps a PC equal to the replace position in place, so
	// the first new line executes next.
	PlacePCBefore
)

// Editor holds the listing of one suspended process while it is being edited.
// PC and cursor name instructions, not slots: edits that move an instruction
// move the pointers with it.
//
// An Editor freezes its process on creation and must be closed to write
// changes back and release the process.
type Editor struct {
	proc        Process
	salvageable bool
	format      func(string) string

	commands     []string
	pc           int
	cursor       int
	inSubroutine bool

	modified bool
	closed   bool

	log *slog.Logger
}

// EditorOption is a functional option for configuring an Editor.
type EditorOption func(*Editor)

// WithEditorLogger sets the logger.
func WithEditorLogger(log *slog.Logger) EditorOption {
	return func(e *Editor) {
		e.log = log
	}
}

// NewEditor acquires exclusive edit rights on proc and loads its listing.
// It fails with ErrAlreadyFrozen if another editor holds the process and
// with ErrNotEditable if the process is not a suspended flat task; in the
// latter case the process is released again.
// salvageable is passed through to Process.SaveInstructions.
func NewEditor(proc Process, salvageable bool, opts ...EditorOption) (*Editor, error) {
	e := &Editor{
		proc:        proc,
		salvageable: salvageable,
		format:      func(line string) string { return line },
		log:         logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if f, ok := proc.(Formatter); ok {
		e.format = f.Format
	}

	if err := proc.Freeze(e); err != nil {
		return nil, fmt.Errorf("failed to freeze process: %w", err)
	}

	commands, pc, err := proc.LoadInstructions()
	if err != nil {
		proc.Unfreeze()
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	e.commands = commands
	e.pc = clamp(pc, len(commands))
	e.cursor = e.pc
	e.inSubroutine = proc.InSubroutineCall()

	e.log.Debug("Task editor opened", "commands", len(commands), "pc", e.pc, "in_subroutine", e.inSubroutine)
	return e, nil
}

// Close writes the listing back if it was modified and releases the process.
// The process is released even when saving fails. Close is idempotent.
func (e *Editor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	defer e.proc.Unfreeze()

	commands, pc := e.commands, e.pc
	e.commands = nil
	e.pc, e.cursor = 0, 0

	if !e.modified {
		e.log.Debug("Task editor closed without changes")
		return nil
	}
	if err := e.proc.SaveInstructions(commands, pc, e.salvageable); err != nil {
		e.log.Error("Failed to save task", "error", err)
		return fmt.Errorf("failed to save task: %w", err)
	}
	e.log.Debug("Task saved", "commands", len(commands), "pc", pc, "salvageable", e.salvageable)
	return nil
}

// Closed reports whether Close has been called.
func (e *Editor) Closed() bool {
	return e.closed
}

// Modified reports whether Close will write the listing back.
func (e *Editor) Modified() bool {
	return e.modified
}

// Len returns the number of instructions.
func (e *Editor) Len() int {
	return len(e.commands)
}

// PC returns the index of the next instruction to execute.
func (e *Editor) PC() int {
	return e.pc
}

// Cursor returns the index selected for editing.
func (e *Editor) Cursor() int {
	return e.cursor
}

// Instruction returns the instruction at index i, or "" if i is out of range.
func (e *Editor) Instruction(i int) string {
	if i < 0 || i >= len(e.commands) {
		return ""
	}
	return e.commands[i]
}

// Commands returns a copy of the listing.
func (e *Editor) Commands() []string {
	return slices.Clone(e.commands)
}

// InSubroutineCall reports whether the PC lies inside a called sub-procedure.
func (e *Editor) InSubroutineCall() bool {
	return e.inSubroutine
}

// SetPC moves the PC, clamped to [0, Len()].
func (e *Editor) SetPC(pc int) {
	if e.closed {
		return
	}
	pc = clamp(pc, len(e.commands))
	if pc != e.pc {
		e.pc = pc
		e.modified = true
	}
}

// SetCursor moves the cursor, clamped to [0, Len()].
func (e *Editor) SetCursor(cursor int) {
	if e.closed {
		return
	}
	e.cursor = clamp(cursor, len(e.commands))
}

// AddAtEnd appends lines. PC and cursor keep their values; a pointer
// past the end now names the first appended line. This differs from
// Insert(Len(), ...), which moves a past-the-end pointer past the new lines.
func (e *Editor) AddAtEnd(lines ...string) {
	if e.closed || len(lines) == 0 {
		return
	}
	for _, line := range lines {
		e.commands = append(e.commands, e.format(line))
	}
	e.modified = true
}

// Insert inserts lines before index pos. A PC or cursor at pos or later
// moves with the instruction it named, so one at Len() stays past the end.
func (e *Editor) Insert(pos int, lines ...string) {
	e.Replace(pos, 0, lines, DefaultCursor, DefaultPC)
}

// Delete removes n instructions starting at pos.
func (e *Editor) Delete(pos, n int) {
	e.Replace(pos, n, nil, DefaultCursor, DefaultPC)
}

// Replace replaces nold instructions at pos with lines. pos and nold are
// clamped to the listing.
func (e *Editor) Replace(pos, nold int, lines []string, cursorBehaviour CursorBehaviour, pcBehaviour PCBehaviour) {
	if e.closed {
		return
	}
	pos = clamp(pos, len(e.commands))
	nold = clamp(nold, len(e.commands)-pos)
	nnew := len(lines)
	if nold == 0 && nnew == 0 {
		return
	}

	formatted := make([]string, nnew)
	for i, line := range lines {
		formatted[i] = e.format(line)
	}
	e.commands = slices.Replace(e.commands, pos, pos+nold, formatted...)

	adjust := func(i int) int {
		switch {
		case i >= pos+nold:
			return i + nnew - nold
		case i >= pos:
			return pos
		}
		return i
	}

	if pcBehaviour != PlacePCBefore || e.pc != pos {
		e.pc = adjust(e.pc)
	}
	if cursorBehaviour == PlaceCursorAfter {
		e.cursor = pos + nnew
	} else {
		e.cursor = adjust(e.cursor)
	}
	e.modified = true
}

// Move relocates the n instructions starting at from so that they end up
// at index to, both counted before removal. n is clamped to |to-from| and
// to the end of the listing; out-of-range indices make Move a no-op.
// PC and cursor keep naming the instructions they named before.
func (e *Editor) Move(from, to, n int) {
	if e.closed {
		return
	}
	length := len(e.commands)
	if from < 0 || from >= length || to < 0 || to >= length || n <= 0 {
		return
	}
	n = min(n, abs(to-from), length-from)
	if n == 0 || (to > from && to-n == from) {
		return
	}

	moved := make([]string, length)
	for i, cmd := range e.commands {
		moved[movedIndex(i, from, to, n)] = cmd
	}
	e.commands = moved
	e.pc = movedIndex(e.pc, from, to, n)
	e.cursor = movedIndex(e.cursor, from, to, n)
	e.modified = true
}

// movedIndex returns where index i ends up when the block [from, from+n)
// is removed and reinserted at to (counted before removal).
func movedIndex(i, from, to, n int) int {
	if to >= from {
		switch {
		case i >= from && i < from+n:
			return i + to - n - from
		case i >= from+n && i < to:
			return i - n
		}
		return i
	}
	switch {
	case i >= from && i < from+n:
		return i - (from - to)
	case i >= to && i < from:
		return i + n
	}
	return i
}

// IsValidCommand reports whether line may be stored in a task: an empty
// line, a comment, or one statement name followed by literal arguments.
// Structured control-flow and declaration keywords are rejected.
func IsValidCommand(line string) bool {
	stmt, err := compiler.ParseStatement(line)
	if err != nil {
		return false
	}
	if stmt.Blank {
		return true
	}
	if compiler.IsReserved(stmt.Name) {
		return false
	}
	return !stmt.IsRestart() || len(stmt.Args) == 0
}

func clamp(i, length int) int {
	return max(0, min(i, length))
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
