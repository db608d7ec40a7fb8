// Package vm provides the in-memory process that owns a compiled task.
// It implements:
// - the exclusive edit lock used by task editors
// - loading and saving the task as text through the compiler
// - call frames for sub-procedures
// - a step executor dispatching statements to built-in functions
package vm

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/zurustar/unitask/pkg/compiler"
	"github.com/zurustar/unitask/pkg/logger"
	"github.com/zurustar/unitask/pkg/opcode"
)

// MaxCallDepth is the maximum number of call frames, including the task's own.
const MaxCallDepth = 64

// State is the execution state of a process.
type State int

const (
	// Suspended processes wait between steps and can be edited.
	Suspended State = iota
	// Running processes are executing an instruction.
	Running
	// Ended processes ran past their last instruction or failed fatally.
	Ended
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Frame is one entry of the call stack.
type Frame struct {
	Name     string
	ReturnPC int
}

// Process is a suspended unit of execution holding a compiled task.
// All methods are safe for concurrent use.
type Process struct {
	id   uuid.UUID
	name string

	mu          sync.Mutex
	owner       any
	code        []opcode.OpCode
	pc          int
	state       State
	frames      []Frame
	salvageable bool

	compiler *compiler.Compiler
	log      *slog.Logger
}

// Option is a functional option for configuring a Process.
type Option func(*Process)

// WithPC sets the initial program counter.
func WithPC(pc int) Option {
	return func(p *Process) {
		p.pc = pc
	}
}

// WithCompiler sets the compiler used to load and save the task text.
func WithCompiler(c *compiler.Compiler) Option {
	return func(p *Process) {
		p.compiler = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Process) {
		p.log = log
	}
}

// NewProcess creates a suspended process running code.
func NewProcess(name string, code []opcode.OpCode, opts ...Option) *Process {
	p := &Process{
		id:     uuid.New(),
		name:   name,
		code:   slices.Clone(code),
		state:  Suspended,
		frames: []Frame{{Name: name, ReturnPC: -1}},
		log:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.compiler == nil {
		p.compiler = compiler.New(compiler.WithLogger(p.log))
	}
	p.pc = max(0, min(p.pc, len(p.code)))
	p.salvageable = hasSalvageMarker(p.code)
	if p.pc >= len(p.code) && len(p.code) > 0 {
		p.state = Ended
	}
	return p
}

// NewProcessFromLines compiles lines and creates a suspended process at
// line index pc.
func NewProcessFromLines(name string, lines []string, pc int, opts ...Option) (*Process, error) {
	p := NewProcess(name, nil, opts...)
	if err := p.SaveInstructions(lines, pc, false); err != nil {
		return nil, err
	}
	return p, nil
}

// ID returns the unique process id.
func (p *Process) ID() uuid.UUID {
	return p.id
}

// Name returns the process name.
func (p *Process) Name() string {
	return p.name
}

// State returns the execution state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PC returns the index of the next opcode to execute.
func (p *Process) PC() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc
}

// Code returns a copy of the compiled task.
func (p *Process) Code() []opcode.OpCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.code)
}

// Frames returns a copy of the call stack, outermost first.
func (p *Process) Frames() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.frames)
}

// Salvageable reports whether the compiled task carries a salvage marker.
func (p *Process) Salvageable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.salvageable
}

// Frozen reports whether an editor holds the process.
func (p *Process) Frozen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner != nil
}

// Freeze grants owner exclusive edit rights. It never blocks: a process
// already held by another owner fails with an ErrorFrozen ProcessError.
func (p *Process) Freeze(owner any) error {
	if owner == nil {
		return newProcessError(ErrorInvalidOperation, p.name, "freeze without owner", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.owner != nil {
		return newProcessError(ErrorFrozen, p.name, "already frozen by another editor", nil)
	}
	p.owner = owner
	p.log.Debug("Process frozen", "process", p.name, "id", p.id)
	return nil
}

// Unfreeze releases edit rights.
func (p *Process) Unfreeze() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.owner = nil
	p.log.Debug("Process unfrozen", "process", p.name, "id", p.id)
}

// LoadInstructions decompiles the task into text lines. The returned pc is
// a line index. Only suspended processes whose task is flat can be loaded.
func (p *Process) LoadInstructions() ([]string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Suspended {
		return nil, 0, newProcessError(ErrorNotSuspended, p.name, "process is "+p.state.String(), nil)
	}
	lines, err := p.compiler.Decompile(p.code)
	if err != nil {
		return nil, 0, newProcessError(ErrorNotFlat, p.name, "task has no text form", err)
	}
	return lines, p.lineIndex(p.pc), nil
}

// SaveInstructions compiles lines and replaces the task. pc is a line
// index. When salvageable, a salvage marker is kept in front of the task.
func (p *Process) SaveInstructions(lines []string, pc int, salvageable bool) error {
	code, err := p.compiler.Compile(lines)
	if err != nil {
		return newProcessError(ErrorCompile, p.name, "failed to compile task", err)
	}
	pc = max(0, min(pc, len(code)))
	if salvageable {
		code = slices.Insert(code, 0, opcode.OpCode{Cmd: opcode.Salvage})
		pc++
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.code = code
	p.pc = pc
	p.salvageable = salvageable
	if p.state == Ended && pc < len(code) {
		p.state = Suspended
	}
	p.log.Debug("Task compiled", "process", p.name, "opcodes", len(code), "pc", pc, "salvageable", salvageable)
	return nil
}

// InSubroutineCall reports whether the process is inside a called sub-procedure.
func (p *Process) InSubroutineCall() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames) > 1
}

// Format renders line in the spelling LoadInstructions returns after it
// was saved.
func (p *Process) Format(line string) string {
	return p.compiler.Format(line)
}

// lineIndex converts an opcode index to a line index. Salvage markers have
// no line.
func (p *Process) lineIndex(pc int) int {
	line := pc
	for _, op := range p.code[:min(pc, len(p.code))] {
		if op.Cmd == opcode.Salvage {
			line--
		}
	}
	return line
}

func hasSalvageMarker(code []opcode.OpCode) bool {
	return len(code) > 0 && code[0].Cmd == opcode.Salvage
}
