package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/zurustar/unitask/pkg/logger"
	"github.com/zurustar/unitask/pkg/opcode"
)

// DefaultStatements are the canonical spellings of the statements every
// unit understands. Names are matched case-insensitively.
var DefaultStatements = []string{
	"MoveTo",
	"MoveTowards",
	"SetWaypoint",
	"SetSpeed",
	"SetMission",
	"SetFCode",
	"SetEnemy",
	"SetName",
	"SetComment",
	"CargoTransfer",
	"CargoUnload",
	"CargoUpload",
	"BuildShip",
	"FixShip",
	"Notify",
	"Print",
	"Stop",
	"WaitOneTurn",
	"Restart",
}

// Compiler translates task lines into OpCodes and OpCodes back into
// canonical task text.
type Compiler struct {
	canonical map[string]string
	log       *slog.Logger
}

// Option is a functional option for configuring the Compiler.
type Option func(*Compiler)

// WithStatements adds canonical statement spellings.
func WithStatements(names ...string) Option {
	return func(c *Compiler) {
		for _, name := range names {
			c.canonical[strings.ToUpper(name)] = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Compiler) {
		c.log = log
	}
}

// New creates a new Compiler knowing DefaultStatements.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		canonical: make(map[string]string, len(DefaultStatements)),
		log:       logger.GetLogger(),
	}
	WithStatements(DefaultStatements...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Canonical returns the canonical spelling of a statement name.
// Unknown names keep their folded uppercase spelling.
func (c *Compiler) Canonical(name string) string {
	folded := strings.ToUpper(name)
	if canonical, ok := c.canonical[folded]; ok {
		return canonical
	}
	return folded
}

// CompileLine compiles one task line.
func (c *Compiler) CompileLine(line string) (opcode.OpCode, error) {
	stmt, err := ParseStatement(line)
	if err != nil {
		return opcode.OpCode{}, err
	}
	if stmt.Blank {
		return opcode.OpCode{Cmd: opcode.Nop, Args: []any{strings.TrimSpace(line)}}, nil
	}
	if IsReserved(stmt.Name) {
		return opcode.OpCode{}, newError("compiler", ErrReserved, 1, "%s cannot be used in a task", c.Canonical(stmt.Name))
	}
	if stmt.IsRestart() {
		if len(stmt.Args) > 0 {
			return opcode.OpCode{}, newError("compiler", ErrBadArgument, 1, "%s takes no arguments", c.Canonical(stmt.Name))
		}
		return opcode.OpCode{Cmd: opcode.Restart}, nil
	}

	args := make([]any, 0, len(stmt.Args)+1)
	args = append(args, stmt.Name)
	args = append(args, stmt.Args...)
	return opcode.OpCode{Cmd: opcode.Call, Args: args}, nil
}

// Compile compiles a task listing. Errors carry the failing line and
// the surrounding listing.
func (c *Compiler) Compile(lines []string) ([]opcode.OpCode, error) {
	code := make([]opcode.OpCode, 0, len(lines))
	for i, line := range lines {
		op, err := c.CompileLine(line)
		if err != nil {
			var ce *CompileError
			if errors.As(err, &ce) {
				return nil, ce.AtLine(i+1, lines)
			}
			return nil, err
		}
		code = append(code, op)
	}
	c.log.Debug("Task compiled", "lines", len(lines), "opcodes", len(code))
	return code, nil
}

// Decompile renders OpCodes as task lines. Salvage markers are skipped.
// Structured OpCodes cannot be rendered and fail with ErrNotFlat.
func (c *Compiler) Decompile(code []opcode.OpCode) ([]string, error) {
	lines := make([]string, 0, len(code))
	for i, op := range code {
		if op.Cmd == opcode.Salvage {
			continue
		}
		line, err := c.decompileOne(op)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (c *Compiler) decompileOne(op opcode.OpCode) (string, error) {
	switch op.Cmd {
	case opcode.Restart:
		return c.Canonical(RestartName), nil
	case opcode.Nop:
		if len(op.Args) == 0 {
			return "", nil
		}
		text, _ := op.Args[0].(string)
		return text, nil
	case opcode.Call:
		if len(op.Args) == 0 {
			return "", newError("decompiler", ErrNotFlat, 0, "call without statement name")
		}
		name, ok := op.Args[0].(string)
		if !ok {
			return "", newError("decompiler", ErrNotFlat, 0, "statement name is %T", op.Args[0])
		}
		var sb strings.Builder
		sb.WriteString(c.Canonical(name))
		for i, arg := range op.Args[1:] {
			if i == 0 {
				sb.WriteByte(' ')
			} else {
				sb.WriteString(", ")
			}
			text, err := FormatArgument(arg)
			if err != nil {
				return "", err
			}
			sb.WriteString(text)
		}
		return sb.String(), nil
	}
	return "", newError("decompiler", ErrNotFlat, 0, "%s has no task text form", op.Cmd)
}

// Format returns the canonical spelling of a task line, as it reads back
// after a compile/decompile round trip. Lines that do not compile are
// returned unchanged.
func (c *Compiler) Format(line string) string {
	op, err := c.CompileLine(line)
	if err != nil {
		return line
	}
	text, err := c.decompileOne(op)
	if err != nil {
		return line
	}
	return text
}

// FormatArgument renders a literal argument so that it lexes back to the same value.
// Floats use the shortest fixed-point text that parses back to the same double;
// the grammar has no exponent, so very large or very small values render long.
// NaN and infinities have no literal form.
func FormatArgument(arg any) (string, error) {
	switch v := arg.(type) {
	case string:
		return quote(v), nil
	case bool:
		if v {
			return "True", nil
		}
		return "False", nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", newError("decompiler", ErrNotFlat, 0, "number %v has no literal form", v)
		}
		text := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(text, ".") {
			text += ".0"
		}
		return text, nil
	}
	return "", newError("decompiler", ErrNotFlat, 0, "argument of type %T has no literal form", arg)
}

func quote(s string) string {
	if !strings.ContainsAny(s, "\n\t") {
		if !strings.ContainsAny(s, "\"\\") {
			return `"` + s + `"`
		}
		if !strings.Contains(s, "'") {
			return "'" + s + "'"
		}
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(ch)
		default:
			sb.WriteByte(ch)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
