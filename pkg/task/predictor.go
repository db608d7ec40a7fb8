package task

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/zurustar/unitask/pkg/compiler"
	"github.com/zurustar/unitask/pkg/logger"
)

// NoLimit is the endPC that lets PredictTask run to the end of the task.
const NoLimit = math.MaxInt

// Listing is the read-only view of a task the predictor walks.
// *Editor implements it.
type Listing interface {
	Len() int
	PC() int
	Instruction(i int) string
}

// Hook receives every statement a prediction decides would execute.
// Returning false stops the prediction.
type Hook interface {
	PredictInstruction(name string, args []any) bool
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(name string, args []any) bool

// PredictInstruction calls f.
func (f HookFunc) PredictInstruction(name string, args []any) bool {
	return f(name, args)
}

// Predictor is a dry-run interpreter for tasks. It decodes statements and
// hands them to its hook; it never executes anything itself.
type Predictor struct {
	hook Hook
	log  *slog.Logger
}

// PredictorOption is a functional option for configuring a Predictor.
type PredictorOption func(*Predictor)

// WithPredictorLogger sets the logger.
func WithPredictorLogger(log *slog.Logger) PredictorOption {
	return func(p *Predictor) {
		p.log = log
	}
}

// NewPredictor creates a Predictor reporting to hook.
func NewPredictor(hook Hook, opts ...PredictorOption) *Predictor {
	p := &Predictor{
		hook: hook,
		log:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PredictTask predicts the task from its current PC up to (not including)
// endPC. A RESTART statement wraps around to the first instruction once;
// after that the prediction stops when it reaches the starting PC again
// or meets another RESTART.
// Undecodable statements end the prediction silently.
func (p *Predictor) PredictTask(task Listing, endPC int) {
	pc := task.PC()
	startPC := pc
	looped := false

	for pc < endPC && pc < task.Len() && (!looped || pc < startPC) {
		line := task.Instruction(pc)
		pc++

		stmt, err := compiler.ParseStatement(line)
		if err != nil {
			p.log.Debug("Prediction stopped at undecodable statement", "pc", pc-1, "error", err)
			return
		}
		if stmt.Blank {
			continue
		}
		if stmt.IsRestart() {
			if looped {
				p.log.Debug("Prediction stopped at second restart", "pc", pc-1)
				return
			}
			looped = true
			pc = 0
			continue
		}
		if !p.hook.PredictInstruction(stmt.Name, stmt.Args) {
			p.log.Debug("Prediction stopped by hook", "pc", pc-1, "statement", stmt.Name)
			return
		}
	}
}

// PredictStatementAt predicts the single instruction at pc.
func (p *Predictor) PredictStatementAt(task Listing, pc int) {
	if pc < 0 || pc >= task.Len() {
		return
	}
	p.PredictStatement(task.Instruction(pc))
}

// PredictStatement predicts one line. RESTART and undecodable lines
// produce no hook call.
func (p *Predictor) PredictStatement(line string) {
	stmt, err := compiler.ParseStatement(line)
	if err != nil {
		p.log.Debug("Statement not predicted", "error", err)
		return
	}
	if stmt.Blank || stmt.IsRestart() {
		return
	}
	p.hook.PredictInstruction(stmt.Name, stmt.Args)
}

// Call is one predicted statement.
type Call struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

// String renders the call as NAME(arg,arg).
func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, arg := range c.Args {
		if text, err := compiler.FormatArgument(arg); err == nil {
			parts[i] = text
		} else {
			parts[i] = fmt.Sprint(arg)
		}
	}
	return c.Name + "(" + strings.Join(parts, ",") + ")"
}

// Recorder is a Hook that records every call. A positive Limit stops the
// prediction once that many calls were recorded.
type Recorder struct {
	Calls []Call
	Limit int
}

// PredictInstruction records the call.
func (r *Recorder) PredictInstruction(name string, args []any) bool {
	r.Calls = append(r.Calls, Call{Name: name, Args: args})
	return r.Limit <= 0 || len(r.Calls) < r.Limit
}

// Strings returns the recorded calls rendered with Call.String.
func (r *Recorder) Strings() []string {
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.String()
	}
	return out
}
