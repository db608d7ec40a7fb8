package vm

import (
	"context"
	"fmt"
	"strings"

	"github.com/zurustar/unitask/pkg/opcode"
)

// BuiltinFunc executes one task statement. Arguments are string, int32,
// float64 or bool values.
type BuiltinFunc func(p *Process, args []any) error

// Builtins maps folded statement names to their implementation.
type Builtins map[string]BuiltinFunc

// Register adds fn under the folded name.
func (b Builtins) Register(name string, fn BuiltinFunc) {
	b[strings.ToUpper(name)] = fn
}

// Step executes the instruction at the PC. A frozen process does not step.
// The process is Running while the statement executes and Suspended again
// afterwards, or Ended once the PC runs past the last instruction. Any
// error from the instruction or its statement ends the process.
func (p *Process) Step(builtins Builtins) error {
	p.mu.Lock()
	if p.owner != nil {
		p.mu.Unlock()
		return newProcessError(ErrorFrozen, p.name, "cannot step while being edited", nil)
	}
	if p.state == Ended {
		p.mu.Unlock()
		return newProcessError(ErrorEnded, p.name, "process has ended", nil)
	}
	if p.pc >= len(p.code) {
		p.state = Ended
		p.mu.Unlock()
		return newProcessError(ErrorEnded, p.name, "process has ended", nil)
	}

	pc := p.pc
	op := p.code[pc]
	p.pc++
	p.state = Running

	call, err := p.execute(pc, op)
	if err != nil {
		p.state = Ended
		p.mu.Unlock()
		p.log.Error("Process failed", "process", p.name, "error", err)
		return err
	}
	p.mu.Unlock()

	if call != nil {
		if err := p.dispatch(builtins, pc, call); err != nil {
			p.mu.Lock()
			p.state = Ended
			p.mu.Unlock()
			p.log.Error("Process failed", "process", p.name, "error", err)
			return err
		}
	}
	p.finishStep()
	return nil
}

// Run steps the process until it ends, ctx is cancelled, or maxSteps
// instructions ran (maxSteps <= 0 means no limit). It returns the number of
// instructions that completed.
func (p *Process) Run(ctx context.Context, builtins Builtins, maxSteps int) (int, error) {
	steps := 0
	for maxSteps <= 0 || steps < maxSteps {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		if p.State() == Ended {
			return steps, nil
		}
		if err := p.Step(builtins); err != nil {
			return steps, err
		}
		steps++
	}
	return steps, nil
}

// execute applies control flow for op and returns the statement to
// dispatch, if any. Must be called with p.mu held.
func (p *Process) execute(pc int, op opcode.OpCode) (*opcode.OpCode, error) {
	switch op.Cmd {
	case opcode.Call:
		if len(op.Args) == 0 {
			return nil, newProcessErrorAt(ErrorInvalidOperation, p.name, pc, "call without statement name", nil)
		}
		return &op, nil

	case opcode.Restart:
		p.pc = 0

	case opcode.Nop, opcode.Salvage:

	case opcode.Jump:
		target, err := p.target(pc, op, 0)
		if err != nil {
			return nil, err
		}
		p.pc = target

	case opcode.JumpIfFalse:
		target, err := p.target(pc, op, 0)
		if err != nil {
			return nil, err
		}
		cond, ok := argAt(op, 1).(bool)
		if !ok {
			return nil, newProcessErrorAt(ErrorInvalidOperation, p.name, pc, "condition is not a boolean", nil)
		}
		if !cond {
			p.pc = target
		}

	case opcode.Gosub:
		target, err := p.target(pc, op, 0)
		if err != nil {
			return nil, err
		}
		if len(p.frames) >= MaxCallDepth {
			return nil, newProcessErrorAt(ErrorStackOverflow, p.name, pc,
				fmt.Sprintf("call depth exceeds maximum %d", MaxCallDepth), nil)
		}
		name, _ := argAt(op, 1).(string)
		p.frames = append(p.frames, Frame{Name: name, ReturnPC: pc + 1})
		p.pc = target

	case opcode.Return:
		if len(p.frames) <= 1 {
			return nil, newProcessErrorAt(ErrorStackUnderflow, p.name, pc, "return outside sub-procedure", nil)
		}
		top := p.frames[len(p.frames)-1]
		p.frames = p.frames[:len(p.frames)-1]
		p.pc = top.ReturnPC

	default:
		return nil, newProcessErrorAt(ErrorInvalidOperation, p.name, pc, fmt.Sprintf("unknown opcode %q", op.Cmd), nil)
	}
	return nil, nil
}

// dispatch runs a Call statement without holding the lock, so built-ins
// may use the process.
func (p *Process) dispatch(builtins Builtins, pc int, call *opcode.OpCode) error {
	name, _ := call.Args[0].(string)
	fn, ok := builtins[strings.ToUpper(name)]
	if !ok {
		p.log.Warn("Unknown statement skipped", "process", p.name, "statement", name, "pc", pc)
		return nil
	}
	if err := fn(p, call.Args[1:]); err != nil {
		return newProcessErrorAt(ErrorStatementFailed, p.name, pc, "statement "+name+" failed", err)
	}
	return nil
}

func (p *Process) finishStep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Running {
		return
	}
	if p.pc >= len(p.code) {
		p.state = Ended
		p.log.Debug("Process ended", "process", p.name)
		return
	}
	p.state = Suspended
}

func (p *Process) target(pc int, op opcode.OpCode, i int) (int, error) {
	target, ok := argAt(op, i).(int)
	if !ok || target < 0 || target > len(p.code) {
		return 0, newProcessErrorAt(ErrorInvalidOperation, p.name, pc, "invalid jump target", nil)
	}
	return target, nil
}

func argAt(op opcode.OpCode, i int) any {
	if i < len(op.Args) {
		return op.Args[i]
	}
	return nil
}
