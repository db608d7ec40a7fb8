package vm

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/zurustar/unitask/pkg/opcode"
)

// recordingBuiltins returns builtins that log every statement they run.
func recordingBuiltins(calls *[]string, names ...string) Builtins {
	b := Builtins{}
	for _, name := range names {
		b.Register(name, func(p *Process, args []any) error {
			*calls = append(*calls, name)
			return nil
		})
	}
	return b
}

func TestStep(t *testing.T) {
	p := mustProcess(t, 0, "moveto 3, 4", "stop")

	var got []any
	builtins := Builtins{}
	builtins.Register("MoveTo", func(_ *Process, args []any) error {
		got = args
		return nil
	})

	if err := p.Step(builtins); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []any{int32(3), int32(4)}; !reflect.DeepEqual(got, want) {
		t.Errorf("args = %#v, want %#v", got, want)
	}
	if p.PC() != 1 || p.State() != Suspended {
		t.Errorf("PC, State = %d, %v, want 1, suspended", p.PC(), p.State())
	}

	// STOP has no builtin and is skipped.
	if err := p.Step(builtins); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.State() != Ended {
		t.Errorf("State = %v, want ended", p.State())
	}

	err := p.Step(builtins)
	var pe *ProcessError
	if !errors.As(err, &pe) || pe.Type != ErrorEnded {
		t.Errorf("error = %v, want ErrorEnded", err)
	}
}

func TestStepFrozen(t *testing.T) {
	p := mustProcess(t, 0, "stop")
	if err := p.Freeze("editor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := p.Step(Builtins{})
	var pe *ProcessError
	if !errors.As(err, &pe) || pe.Type != ErrorFrozen {
		t.Fatalf("error = %v, want ErrorFrozen", err)
	}
	if p.PC() != 0 {
		t.Errorf("frozen process advanced to %d", p.PC())
	}
}

func TestRunRestart(t *testing.T) {
	p := mustProcess(t, 0, "a", "b", "restart")

	var calls []string
	steps, err := p.Run(context.Background(), recordingBuiltins(&calls, "A", "B"), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steps != 7 {
		t.Errorf("steps = %d, want 7", steps)
	}
	if want := []string{"A", "B", "A", "B", "A"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %q, want %q", calls, want)
	}
	if p.State() != Suspended {
		t.Errorf("State = %v, want suspended", p.State())
	}
}

func TestRunSubroutine(t *testing.T) {
	p := NewProcess("sub", []opcode.OpCode{
		{Cmd: opcode.Gosub, Args: []any{3, "PATROL"}},
		{Cmd: opcode.Call, Args: []any{"A"}},
		{Cmd: opcode.Jump, Args: []any{5}},
		{Cmd: opcode.Call, Args: []any{"B"}},
		{Cmd: opcode.Return},
	})

	var calls []string
	var inside []bool
	builtins := recordingBuiltins(&calls, "A")
	builtins.Register("B", func(p *Process, _ []any) error {
		calls = append(calls, "B")
		inside = append(inside, p.InSubroutineCall())
		return nil
	})

	if err := p.Step(builtins); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.InSubroutineCall() {
		t.Error("InSubroutineCall = false after Gosub")
	}
	if frames := p.Frames(); len(frames) != 2 || frames[1].Name != "PATROL" || frames[1].ReturnPC != 1 {
		t.Errorf("frames = %#v", frames)
	}

	steps, err := p.Run(context.Background(), builtins, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steps != 4 {
		t.Errorf("steps = %d, want 4", steps)
	}
	if want := []string{"B", "A"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %q, want %q", calls, want)
	}
	if !reflect.DeepEqual(inside, []bool{true}) {
		t.Errorf("inside = %v, want [true]", inside)
	}
	if p.InSubroutineCall() {
		t.Error("InSubroutineCall = true after Return")
	}
	if p.State() != Ended {
		t.Errorf("State = %v, want ended", p.State())
	}
}

func TestStepFatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     []opcode.OpCode
		expected ErrorType
	}{
		{"return at top level", []opcode.OpCode{{Cmd: opcode.Return}}, ErrorStackUnderflow},
		{"bad jump target", []opcode.OpCode{{Cmd: opcode.Jump, Args: []any{9}}}, ErrorInvalidOperation},
		{"condition not boolean", []opcode.OpCode{{Cmd: opcode.JumpIfFalse, Args: []any{0, 1}}}, ErrorInvalidOperation},
		{"call without name", []opcode.OpCode{{Cmd: opcode.Call}}, ErrorInvalidOperation},
		{"unknown opcode", []opcode.OpCode{{Cmd: "Halt"}}, ErrorInvalidOperation},
		{"recursion", []opcode.OpCode{{Cmd: opcode.Gosub, Args: []any{0, "SELF"}}}, ErrorStackOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcess("bad", tt.code)
			_, err := p.Run(context.Background(), Builtins{}, 1000)

			var pe *ProcessError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ProcessError", err)
			}
			if pe.Type != tt.expected {
				t.Errorf("Type = %s, want %s", pe.Type, tt.expected)
			}
			if !pe.IsFatal() {
				t.Error("IsFatal = false, want true")
			}
			if p.State() != Ended {
				t.Errorf("State = %v, want ended", p.State())
			}
		})
	}
}

func TestJumpIfFalse(t *testing.T) {
	p := NewProcess("branch", []opcode.OpCode{
		{Cmd: opcode.JumpIfFalse, Args: []any{2, true}},
		{Cmd: opcode.JumpIfFalse, Args: []any{3, false}},
		{Cmd: opcode.Call, Args: []any{"SKIPPED"}},
		{Cmd: opcode.Call, Args: []any{"REACHED"}},
	})

	var calls []string
	if _, err := p.Run(context.Background(), recordingBuiltins(&calls, "SKIPPED", "REACHED"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"REACHED"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %q, want %q", calls, want)
	}
}

func TestStepStatementFailure(t *testing.T) {
	p := mustProcess(t, 0, "fire", "stop")
	boom := errors.New("no ammunition")
	builtins := Builtins{}
	builtins.Register("FIRE", func(*Process, []any) error { return boom })

	err := p.Step(builtins)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped builtin error", err)
	}
	var pe *ProcessError
	if !errors.As(err, &pe) || pe.Type != ErrorStatementFailed || pe.PC != 0 {
		t.Errorf("error = %#v, want ErrorStatementFailed at 0", err)
	}
	if !pe.IsFatal() {
		t.Error("statement failure should be fatal")
	}
	if p.State() != Ended || p.PC() != 1 {
		t.Errorf("State, PC = %v, %d, want ended, 1", p.State(), p.PC())
	}

	// an ended process does not step again
	err = p.Step(builtins)
	if !errors.As(err, &pe) || pe.Type != ErrorEnded {
		t.Errorf("second Step error = %v, want ErrorEnded", err)
	}
}

func TestRunCancelled(t *testing.T) {
	p := mustProcess(t, 0, "restart")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps, err := p.Run(ctx, Builtins{}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if steps != 0 {
		t.Errorf("steps = %d, want 0", steps)
	}
}
