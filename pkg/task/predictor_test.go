package task

import (
	"reflect"
	"testing"
)

// staticListing is a fixed Listing for predictor tests.
type staticListing struct {
	lines []string
	pc    int
}

func (l staticListing) Len() int { return len(l.lines) }
func (l staticListing) PC() int  { return l.pc }
func (l staticListing) Instruction(i int) string {
	if i < 0 || i >= len(l.lines) {
		return ""
	}
	return l.lines[i]
}

func TestPredictTask(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		pc       int
		endPC    int
		limit    int
		expected []string
	}{
		{
			name:     "restart wraps to before start",
			lines:    []string{"a", "b", "c", "restart"},
			pc:       1,
			endPC:    NoLimit,
			expected: []string{"B()", "C()", "A()"},
		},
		{
			name:     "end pc",
			lines:    []string{"a", "b", "c"},
			endPC:    2,
			expected: []string{"A()", "B()"},
		},
		{
			name:     "end pc at start",
			lines:    []string{"a", "b"},
			pc:       1,
			endPC:    1,
			expected: nil,
		},
		{
			name:     "arguments",
			lines:    []string{"moveto 1, -2", "setname 'x', 0.5, true"},
			endPC:    NoLimit,
			expected: []string{"MOVETO(1,-2)", `SETNAME("x",0.5,True)`},
		},
		{
			name:     "blank lines and comments",
			lines:    []string{"", "% note", "a", "   "},
			endPC:    NoLimit,
			expected: []string{"A()"},
		},
		{
			name:     "undecodable statement stops",
			lines:    []string{"a", "hi +", "c"},
			endPC:    NoLimit,
			expected: []string{"A()"},
		},
		{
			name:     "hook stops",
			lines:    []string{"a", "b", "c"},
			endPC:    NoLimit,
			limit:    2,
			expected: []string{"A()", "B()"},
		},
		{
			name:     "restart at start",
			lines:    []string{"restart", "a"},
			endPC:    NoLimit,
			expected: nil,
		},
		{
			name:     "restart only once",
			lines:    []string{"a", "restart", "b", "restart"},
			pc:       2,
			endPC:    NoLimit,
			expected: []string{"B()", "A()"},
		},
		{
			name:     "pc at end",
			lines:    []string{"a"},
			pc:       1,
			endPC:    NoLimit,
			expected: nil,
		},
		{
			name:     "empty task",
			endPC:    NoLimit,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Recorder{Limit: tt.limit}
			NewPredictor(rec).PredictTask(staticListing{lines: tt.lines, pc: tt.pc}, tt.endPC)

			if got := rec.Strings(); !reflect.DeepEqual(nilIfEmpty(got), tt.expected) {
				t.Errorf("predicted %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPredictTaskFromEditor(t *testing.T) {
	e := openEditor(t, newFakeProcess(1, "a", "b", "c", "restart"))
	defer e.Close()

	var names []string
	hook := HookFunc(func(name string, args []any) bool {
		names = append(names, name)
		return true
	})
	NewPredictor(hook).PredictTask(e, NoLimit)

	if want := []string{"B", "C", "A"}; !reflect.DeepEqual(names, want) {
		t.Errorf("predicted %q, want %q", names, want)
	}
}

func TestPredictStatement(t *testing.T) {
	tests := []struct {
		line     string
		expected []string
	}{
		{"hi 1,2", []string{"HI(1,2)"}},
		{"Notify 'done'", []string{`NOTIFY("done")`}},
		{"restart", nil},
		{"hi +", nil},
		{"", nil},
		{"% only a comment", nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			rec := &Recorder{}
			NewPredictor(rec).PredictStatement(tt.line)
			if got := nilIfEmpty(rec.Strings()); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("PredictStatement(%q) = %q, want %q", tt.line, got, tt.expected)
			}
		})
	}
}

func TestPredictStatementAt(t *testing.T) {
	listing := staticListing{lines: []string{"a", "b 3"}}

	rec := &Recorder{}
	p := NewPredictor(rec)
	p.PredictStatementAt(listing, 1)
	p.PredictStatementAt(listing, 2)
	p.PredictStatementAt(listing, -1)

	if want := []string{"B(3)"}; !reflect.DeepEqual(rec.Strings(), want) {
		t.Errorf("predicted %q, want %q", rec.Strings(), want)
	}
}

func TestRecorderArgs(t *testing.T) {
	rec := &Recorder{}
	NewPredictor(rec).PredictStatement("moveto 3, 4.5")

	if len(rec.Calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(rec.Calls))
	}
	want := Call{Name: "MOVETO", Args: []any{int32(3), 4.5}}
	if !reflect.DeepEqual(rec.Calls[0], want) {
		t.Errorf("call = %#v, want %#v", rec.Calls[0], want)
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
