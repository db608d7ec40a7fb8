package script

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func mustEncoding(t *testing.T, name string) encoding.Encoding {
	t.Helper()
	enc, err := LookupEncoding(name)
	if err != nil {
		t.Fatalf("LookupEncoding(%q): %v", name, err)
	}
	return enc
}

func TestLookupEncoding(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8", "shift_jis", "sjis", "euc-jp"} {
		if _, err := LookupEncoding(name); err != nil {
			t.Errorf("LookupEncoding(%q): unexpected error: %v", name, err)
		}
	}
	if _, err := LookupEncoding("klingon"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestLoad_UTF8(t *testing.T) {
	fsys := fstest.MapFS{
		"Patrol.task": {Data: []byte("MoveTo 1, 2\r\n% wait\r\n\r\nRestart\r\n")},
	}
	loader := NewLoader(fsys, mustEncoding(t, "utf-8"))

	// ファイル名の大文字小文字は無視される
	script, err := loader.Load("patrol.TASK")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if script.FileName != "Patrol.task" {
		t.Errorf("expected filename 'Patrol.task', got %q", script.FileName)
	}
	want := []string{"MoveTo 1, 2", "% wait", "", "Restart"}
	if !reflect.DeepEqual(script.Lines, want) {
		t.Errorf("lines mismatch:\nexpected: %q\ngot: %q", want, script.Lines)
	}
	if script.Size == 0 {
		t.Error("script size should not be 0")
	}
}

func TestLoad_ShiftJIS(t *testing.T) {
	testContent := "SetName 'これはShift-JISのテストです'\nStop"

	// UTF-8からShift-JISに変換
	encoder := japanese.ShiftJIS.NewEncoder()
	shiftJISContent, _, err := transform.String(encoder, testContent)
	if err != nil {
		t.Fatalf("failed to encode to Shift-JIS: %v", err)
	}

	fsys := fstest.MapFS{"unit.task": {Data: []byte(shiftJISContent)}}
	script, err := NewLoader(fsys, mustEncoding(t, "shift_jis")).Load("unit.task")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"SetName 'これはShift-JISのテストです'", "Stop"}
	if !reflect.DeepEqual(script.Lines, want) {
		t.Errorf("lines mismatch:\nexpected: %q\ngot: %q", want, script.Lines)
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := NewLoader(fstest.MapFS{}, mustEncoding(t, "utf-8")).Load("missing.task")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestDecodeLines(t *testing.T) {
	enc := mustEncoding(t, "utf-8")

	testCases := []struct {
		name  string
		input string
		want  []string
	}{
		{"空ファイル", "", []string{}},
		{"末尾改行なし", "a\nb", []string{"a", "b"}},
		{"末尾改行あり", "a\nb\n", []string{"a", "b"}},
		{"BOM付き", "\ufeffa\n", []string{"a"}},
		{"空行を保持", "a\n\nb\n", []string{"a", "", "b"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeLines([]byte(tc.input), enc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("DecodeLines() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSaveFileAndLoadFile(t *testing.T) {
	testCases := []struct {
		name     string
		encoding string
		lines    []string
	}{
		{"UTF-8", "utf-8", []string{"MoveTo 1, 2", "Notify \"出撃\"", "Restart"}},
		{"Shift-JIS", "shift_jis", []string{"SetComment 'こんにちは世界'", "", "Stop"}},
		{"EUC-JP", "euc-jp", []string{"Print \"混在 text 123\""}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := LookupEncoding(tc.encoding)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			path := filepath.Join(t.TempDir(), "unit.task")

			if err := SaveFile(path, tc.lines, enc); err != nil {
				t.Fatalf("SaveFile: unexpected error: %v", err)
			}
			script, err := LoadFile(path, enc)
			if err != nil {
				t.Fatalf("LoadFile: unexpected error: %v", err)
			}
			if !reflect.DeepEqual(script.Lines, tc.lines) {
				t.Errorf("lines = %q, want %q", script.Lines, tc.lines)
			}
		})
	}
}

func TestSaveFile_Unencodable(t *testing.T) {
	enc, err := LookupEncoding("shift_jis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "unit.task")

	// Shift-JISで表現できない文字
	if err := SaveFile(path, []string{"Print '🚀'"}, enc); err == nil {
		t.Error("expected error for character outside Shift-JIS")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not be written on encoding failure")
	}
}
