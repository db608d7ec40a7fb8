// Package starhook implements a prediction hook as a Starlark script.
//
// The script must define predict(name, args). It is called for every
// statement a prediction decides would execute; returning False stops the
// prediction and returning None or any true value continues it. The
// predeclared emit(*values) builtin records a line of output.
//
//	def predict(name, args):
//	    if name == "MOVETO":
//	        emit("moving to", args[0], args[1])
//	    return name != "STOP"
package starhook

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/zurustar/unitask/pkg/logger"
)

// DefaultMaxSteps bounds the Starlark computation a hook may perform over its lifetime.
const DefaultMaxSteps = 1_000_000

// ErrNoPredict is returned when a script does not define a predict function.
var ErrNoPredict = errors.New("script does not define predict(name, args)")

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Hook runs a Starlark predict function for every predicted statement.
type Hook struct {
	thread   *starlark.Thread
	predict  starlark.Callable
	out      io.Writer
	maxSteps uint64
	emitted  []string
	err      error
	log      *slog.Logger
}

// Option is a functional option for configuring a Hook.
type Option func(*Hook)

// WithOutput also writes emitted and printed lines to w.
func WithOutput(w io.Writer) Option {
	return func(h *Hook) {
		h.out = w
	}
}

// WithMaxSteps sets the execution step budget of the script.
func WithMaxSteps(n uint64) Option {
	return func(h *Hook) {
		h.maxSteps = n
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Hook) {
		h.log = log
	}
}

// Load executes the script and returns a Hook calling its predict function.
// src may be nil to read filename, or a string, []byte or io.Reader.
func Load(filename string, src any, opts ...Option) (*Hook, error) {
	h := &Hook{
		maxSteps: DefaultMaxSteps,
		log:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.thread = &starlark.Thread{
		Name: "predict",
		Print: func(_ *starlark.Thread, msg string) {
			h.write(msg)
		},
	}
	h.thread.SetMaxExecutionSteps(h.maxSteps)

	predeclared := starlark.StringDict{
		"emit": starlark.NewBuiltin("emit", h.emit),
	}
	globals, err := starlark.ExecFileOptions(fileOptions, h.thread, filename, src, predeclared)
	if err != nil {
		return nil, fmt.Errorf("failed to load hook script %s: %w", filename, err)
	}

	predict, ok := globals["predict"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoPredict)
	}
	h.predict = predict
	return h, nil
}

// PredictInstruction calls predict(name, args). A script error stops the
// prediction and is kept for Err.
func (h *Hook) PredictInstruction(name string, args []any) bool {
	if h.err != nil {
		return false
	}

	values := make([]starlark.Value, len(args))
	for i, arg := range args {
		values[i] = toStarlarkValue(arg)
	}

	result, err := starlark.Call(h.thread, h.predict, starlark.Tuple{
		starlark.String(name),
		starlark.NewList(values),
	}, nil)
	if err != nil {
		h.err = err
		h.log.Warn("Hook script failed", "statement", name, "error", err)
		return false
	}

	if result == starlark.None {
		return true
	}
	return bool(result.Truth())
}

// Err returns the first script error raised by predict.
func (h *Hook) Err() error {
	return h.err
}

// Emitted returns the lines recorded by emit and print.
func (h *Hook) Emitted() []string {
	return h.emitted
}

func (h *Hook) emit(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		if s, ok := starlark.AsString(arg); ok {
			parts[i] = s
		} else {
			parts[i] = arg.String()
		}
	}
	h.write(strings.Join(parts, " "))
	return starlark.None, nil
}

func (h *Hook) write(line string) {
	h.emitted = append(h.emitted, line)
	if h.out != nil {
		fmt.Fprintln(h.out, line)
	}
}

func toStarlarkValue(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case int:
		return starlark.MakeInt(v)
	case int32:
		return starlark.MakeInt(int(v))
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = toStarlarkValue(e)
		}
		return starlark.NewList(elems)
	}
	return starlark.String(fmt.Sprint(v))
}
