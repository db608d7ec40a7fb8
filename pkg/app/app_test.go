package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("UNITASK_CONFIG", "")
	t.Setenv("UNITASK_LISTEN", "")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := New(&out).Run(context.Background(), args)
	return out.String(), err
}

func TestRun_Help(t *testing.T) {
	clearEnv(t)

	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "unitask - Unit Task Editor and Predictor") {
		t.Errorf("help output should contain title, got:\n%s", out)
	}
}

func TestRun_ListingAndPrediction(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "patrol.task", "moveto 1,2\n% wait here\nsetspeed 3\nrestart\n")

	out, err := run(t, "--pc", "2", "--cursor", "1", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := strings.Join([]string{
		"     0  MoveTo 1, 2",
		" *   1  % wait here",
		">    2  SetSpeed 3",
		"     3  Restart",
		"Prediction:",
		"  SETSPEED(3)",
		"  MOVETO(1,2)",
		"",
	}, "\n")
	if out != want {
		t.Errorf("output mismatch:\nexpected:\n%s\ngot:\n%s", want, out)
	}
}

func TestRun_EditAndWrite(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "patrol.task", "one\ntwo\nthree\nfour\nfive\n")

	out, err := run(t, path, "--pc", "1", "--append", "six", "--move", "0,4,2", "--write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, ">*   3  TWO") {
		t.Errorf("pc and cursor should follow the moved instruction:\n%s", out)
	}
	if !strings.Contains(out, "Prediction:\n  TWO()\n  FIVE()\n  SIX()\n") {
		t.Errorf("unexpected prediction:\n%s", out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read task: %v", err)
	}
	if want := "THREE\nFOUR\nONE\nTWO\nFIVE\nSIX\n"; string(data) != want {
		t.Errorf("written task = %q, want %q", data, want)
	}
}

func TestRun_WithoutWriteKeepsFile(t *testing.T) {
	clearEnv(t)
	content := "one\ntwo\nthree\n"
	path := writeFile(t, t.TempDir(), "patrol.task", content)

	if _, err := run(t, "--move", "0,2,1", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read task: %v", err)
	}
	if string(data) != content {
		t.Errorf("task file changed without --write: %q", data)
	}
}

func TestRun_HookScript(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "patrol.task", "a\nb 1\nc\n")
	hook := writeFile(t, dir, "hook.star", `
def predict(name, args):
    emit("predict", name, len(args))
    return name != "B"
`)

	out, err := run(t, "--hook", hook, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Prediction:\npredict A 0\npredict B 1\n") {
		t.Errorf("unexpected hook output:\n%s", out)
	}
	if strings.Contains(out, "predict C") {
		t.Errorf("prediction should stop after B:\n%s", out)
	}
}

func TestRun_HookScriptError(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "patrol.task", "a\n")
	hook := writeFile(t, dir, "hook.star", `
def predict(name, args):
    return 1 // 0
`)

	if _, err := run(t, "--hook", hook, path); err == nil || !strings.Contains(err.Error(), "hook script failed") {
		t.Errorf("expected hook script error, got %v", err)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "patrol.task", "patrol 3\nstop\n")
	cfg := writeFile(t, dir, "unitask.cue", `
log_level:  "error"
statements: ["Patrol"]
`)

	out, err := run(t, "-c", cfg, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Patrol 3") {
		t.Errorf("configured statement spelling not used:\n%s", out)
	}
}

func TestRun_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	structured := writeFile(t, dir, "bad.task", "stop\nif x\n")
	good := writeFile(t, dir, "good.task", "stop\n")
	badConfig := writeFile(t, dir, "bad.cue", `colour: "red"`)

	tests := []struct {
		name string
		args []string
	}{
		{"タスクファイルなし", []string{}},
		{"存在しないファイル", []string{filepath.Join(dir, "missing.task")}},
		{"コンパイルエラー", []string{structured}},
		{"不正な設定ファイル", []string{"-c", badConfig, good}},
		{"未知の文字コード", []string{"--encoding", "klingon", good}},
		{"存在しないフック", []string{"--hook", filepath.Join(dir, "missing.star"), good}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Errorf("expected error for args %q", tt.args)
			}
		})
	}
}

func TestRun_Serve(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "patrol.task", "a\nb\nrestart\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan net.Addr, 1)
	application := New(&bytes.Buffer{})
	application.ready = func(addr net.Addr) {
		addrCh <- addr
	}

	done := make(chan error, 1)
	go func() {
		done <- application.Run(ctx, []string{"--serve", "--listen", "127.0.0.1:0", path})
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("server stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	res, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	var health map[string]any
	err = json.NewDecoder(res.Body).Decode(&health)
	res.Body.Close()
	if err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health["processes"] != float64(1) {
		t.Errorf("task file should be registered, healthz = %+v", health)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
