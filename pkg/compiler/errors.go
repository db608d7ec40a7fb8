// Package compiler turns task lines into OpCodes and back.
// This file defines the CompileError type for structured error reporting.
package compiler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotStatement is returned when a line does not start with a statement name.
	ErrNotStatement = errors.New("line does not start with a statement name")

	// ErrBadArgument is returned for malformed literal arguments or delimiters.
	ErrBadArgument = errors.New("malformed argument list")

	// ErrReserved is returned for structured control-flow and declaration keywords.
	ErrReserved = errors.New("keyword not allowed in a task")

	// ErrNotFlat is returned when bytecode has no one-line text form.
	ErrNotFlat = errors.New("instruction has no task text form")
)

// CompileError represents a structured compilation error with location information.
type CompileError struct {
	// Phase indicates which phase generated the error.
	// Valid values: "lexer", "parser", "compiler", "decompiler"
	Phase string

	// Message is the human-readable error description.
	Message string

	// Line is the 1-indexed task line where the error occurred (0 if unknown).
	Line int

	// Column is the 1-indexed column number where the error occurred.
	Column int

	// Context contains the task listing around the error location.
	Context string

	// Err is the underlying sentinel or lexer error.
	Err error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var location string
	if e.Line > 0 {
		location = fmt.Sprintf(" at line %d, column %d", e.Line, e.Column)
	} else if e.Column > 0 {
		location = fmt.Sprintf(" at column %d", e.Column)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s error%s: %s\n%s", e.Phase, location, e.Message, e.Context)
	}
	return fmt.Sprintf("%s error%s: %s", e.Phase, location, e.Message)
}

// Unwrap returns the underlying error.
func (e *CompileError) Unwrap() error {
	return e.Err
}

func newError(phase string, err error, column int, format string, args ...any) *CompileError {
	return &CompileError{
		Phase:   phase,
		Message: fmt.Sprintf(format, args...),
		Column:  column,
		Err:     err,
	}
}

// AtLine returns a copy of the error located at the given line of lines,
// with the surrounding listing attached as context.
func (e *CompileError) AtLine(line int, lines []string) *CompileError {
	c := *e
	c.Line = line
	c.Context = GenerateErrorContext(strings.Join(lines, "\n"), line, e.Column)
	return &c
}

// GenerateErrorContext generates source context around an error location.
// It includes 2 lines before and 2 lines after the error line, with line numbers
// and a pointer (^) indicating the error column.
//
// Example output:
//
//	  1 | MoveTo 100, 200
//	> 2 | SetSpeed 'fast
//	               ^
//	  3 | Restart
func GenerateErrorContext(source string, line, column int) string {
	if source == "" || line <= 0 {
		return ""
	}

	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}

	start := line - 3
	if start < 0 {
		start = 0
	}
	end := line + 2
	if end > len(lines) {
		end = len(lines)
	}

	var buf strings.Builder

	lineNumWidth := len(fmt.Sprintf("%d", end))

	for i := start; i < end; i++ {
		lineNum := i + 1
		lineContent := lines[i]

		if lineNum == line {
			buf.WriteString(fmt.Sprintf("> %*d | %s\n", lineNumWidth, lineNum, lineContent))
			// "> " + lineNumWidth + " | "
			pointerIndent := 2 + lineNumWidth + 3
			if column > 0 {
				buf.WriteString(fmt.Sprintf("%s%s^\n", strings.Repeat(" ", pointerIndent), strings.Repeat(" ", column-1)))
			} else {
				buf.WriteString(fmt.Sprintf("%s^\n", strings.Repeat(" ", pointerIndent)))
			}
		} else {
			buf.WriteString(fmt.Sprintf("  %*d | %s\n", lineNumWidth, lineNum, lineContent))
		}
	}

	return buf.String()
}
