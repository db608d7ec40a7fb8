package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

var (
	globalLogger *slog.Logger
	logFile      *os.File
)

// options InitLoggerの設定
type options struct {
	output  io.Writer
	logFile string
	journal bool
}

// Option InitLoggerのオプション
type Option func(*options)

// WithOutput テキストログの出力先を設定（デフォルトはstderr）
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithLogFile JSON形式のログを追記するファイルを設定
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// WithJournal systemd journalへの出力を有効化
func WithJournal(enabled bool) Option {
	return func(o *options) {
		o.journal = enabled
	}
}

// ParseLevel ログレベル文字列をslog.Levelに変換
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}

// InitLogger ログレベルに応じてslogを初期化
// テキスト出力、JSONファイル、journalの各ハンドラーをFanoutで束ねる
func InitLogger(level string, opts ...Option) error {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return err
	}

	o := &options{output: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	handlerOptions := &slog.HandlerOptions{Level: slogLevel}
	textHandler := slog.NewTextHandler(o.output, handlerOptions)
	handlers := []slog.Handler{textHandler}

	var file *os.File
	if o.logFile != "" {
		file, err = os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, handlerOptions))
	}

	if o.journal {
		journalHandler, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: slogLevel,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			// journalが使えない環境では警告だけ出して続行
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
			record.Add("error", err)
			_ = textHandler.Handle(context.Background(), record)
		} else {
			handlers = append(handlers, journalHandler)
		}
	}

	// 以前のログファイルを閉じる
	if logFile != nil {
		logFile.Close()
	}
	logFile = file

	globalLogger = slog.New(slogmulti.Fanout(handlers...))
	slog.SetDefault(globalLogger)

	return nil
}

// Close ログファイルを閉じる
func Close() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// GetLogger グローバルロガーを取得
func GetLogger() *slog.Logger {
	if globalLogger == nil {
		// デフォルトロガーを返す
		return slog.Default()
	}
	return globalLogger
}

// toJournalKey journalのフィールド名規則（大文字英数字と_）に変換
func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}
