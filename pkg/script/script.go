package script

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/zurustar/unitask/pkg/fileutil"
)

// DefaultEncoding タスクファイルの既定の文字コード
const DefaultEncoding = "utf-8"

// Script はタスクファイルを表す
type Script struct {
	FileName string   // ファイル名
	Lines    []string // UTF-8に変換された各行
	Size     int64    // ファイルサイズ
}

// Loader はタスクファイルの読み込みを行う
type Loader struct {
	fsys     fs.FS
	encoding encoding.Encoding
}

// LookupEncoding 文字コード名（"utf-8", "shift_jis", "euc-jp"など）からEncodingを取得
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	return enc, nil
}

// NewLoader Loaderを作成
func NewLoader(fsys fs.FS, enc encoding.Encoding) *Loader {
	return &Loader{
		fsys:     fsys,
		encoding: enc,
	}
}

// Load タスクファイルを読み込む（ファイル名の大文字小文字を無視）
func (l *Loader) Load(name string) (*Script, error) {
	filePath, err := fileutil.Resolve(l.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find task file: %w", err)
	}

	data, err := fs.ReadFile(l.fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lines, err := DecodeLines(data, l.encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to convert encoding: %w", err)
	}

	return &Script{
		FileName: path.Base(filePath),
		Lines:    lines,
		Size:     int64(len(data)),
	}, nil
}

// LoadFile パスを指定してタスクファイルを読み込む
func LoadFile(filePath string, enc encoding.Encoding) (*Script, error) {
	dir, file := splitPath(filePath)
	return NewLoader(os.DirFS(dir), enc).Load(file)
}

// SaveFile 各行を指定の文字コードでファイルに書き込む
func SaveFile(filePath string, lines []string, enc encoding.Encoding) error {
	data, err := EncodeLines(lines, enc)
	if err != nil {
		return fmt.Errorf("failed to convert encoding: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// DecodeLines バイト列をUTF-8に変換して行に分割
// CRLFとLFの両方を受け付け、末尾の改行は空行として扱わない
func DecodeLines(data []byte, enc encoding.Encoding) ([]string, error) {
	reader := transform.NewReader(bytes.NewReader(data), enc.NewDecoder())
	utf8Data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	text := strings.TrimPrefix(string(utf8Data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

// EncodeLines 各行を改行で連結して指定の文字コードに変換
func EncodeLines(lines []string, enc encoding.Encoding) ([]byte, error) {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	out, _, err := transform.String(enc.NewEncoder(), sb.String())
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// splitPath ファイルパスをディレクトリとファイル名に分割
func splitPath(filePath string) (string, string) {
	filePath = strings.ReplaceAll(filePath, "\\", "/")
	dir, file := path.Split(filePath)
	if dir == "" {
		dir = "."
	}
	return dir, file
}
