package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/text/encoding"

	"github.com/zurustar/unitask/pkg/cli"
	"github.com/zurustar/unitask/pkg/compiler"
	"github.com/zurustar/unitask/pkg/config"
	"github.com/zurustar/unitask/pkg/logger"
	"github.com/zurustar/unitask/pkg/observability"
	"github.com/zurustar/unitask/pkg/script"
	"github.com/zurustar/unitask/pkg/server"
	"github.com/zurustar/unitask/pkg/starhook"
	"github.com/zurustar/unitask/pkg/task"
	"github.com/zurustar/unitask/pkg/vm"
)

// shutdownTimeout HTTPサーバーの停止待ち時間
const shutdownTimeout = 5 * time.Second

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config   *cli.Config
	settings config.Config
	log      *slog.Logger
	stdout   io.Writer
	compiler *compiler.Compiler
	encoding encoding.Encoding

	// ready サーバー起動後に待ち受けアドレスを通知する（テスト用）
	ready func(addr net.Addr)
}

// New Applicationを作成
func New(stdout io.Writer) *Application {
	return &Application{
		stdout: stdout,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(ctx context.Context, args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp {
		cli.PrintHelp(app.stdout)
		return nil
	}

	// 2. 設定ファイルの読み込み（コマンドラインが優先）
	if err := app.loadSettings(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	app.log.Info("Application started")

	enc, err := script.LookupEncoding(app.settings.Encoding)
	if err != nil {
		return err
	}
	app.encoding = enc
	app.compiler = compiler.New(
		compiler.WithStatements(app.settings.Statements...),
		compiler.WithLogger(app.log),
	)

	// 4. サーバーモードまたはタスク編集
	if app.config.Serve {
		err = app.serve(ctx)
	} else {
		err = app.editTask()
	}
	if err != nil {
		return err
	}

	app.log.Info("Application terminated normally")
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// loadSettings 設定ファイルを読み込み、コマンドライン引数で上書きする
func (app *Application) loadSettings() error {
	settings := config.Default()
	if app.config.ConfigPath != "" {
		loaded, err := config.Load(app.config.ConfigPath)
		if err != nil {
			return err
		}
		settings = loaded
	}

	if app.config.LogLevel != "" {
		settings.LogLevel = app.config.LogLevel
	}
	if app.config.Encoding != "" {
		settings.Encoding = app.config.Encoding
	}
	if app.config.HookScript != "" {
		settings.HookScript = app.config.HookScript
	}
	if app.config.Listen != "" {
		settings.Listen = app.config.Listen
	}
	if app.config.Salvage {
		settings.Salvageable = true
	}
	app.settings = settings
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	var opts []logger.Option
	if app.settings.LogFile != "" {
		opts = append(opts, logger.WithLogFile(app.settings.LogFile))
	}
	if app.settings.Journal {
		opts = append(opts, logger.WithJournal(true))
	}
	if err := logger.InitLogger(app.settings.LogLevel, opts...); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// newProcess タスクファイルを読み込んでプロセスを作成
func (app *Application) newProcess(path string, pc int) (*vm.Process, error) {
	s, err := script.LoadFile(path, app.encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	app.log.Info("Task file loaded", "name", s.FileName, "lines", len(s.Lines), "size", s.Size)

	proc, err := vm.NewProcessFromLines(s.FileName, s.Lines, pc,
		vm.WithCompiler(app.compiler),
		vm.WithLogger(app.log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile task: %w", err)
	}
	return proc, nil
}

// editTask タスクを編集し、一覧と予測を表示する
func (app *Application) editTask() (err error) {
	proc, err := app.newProcess(app.config.TaskPath, app.config.PC)
	if err != nil {
		return err
	}

	editor, err := task.NewEditor(proc, app.settings.Salvageable, task.WithEditorLogger(app.log))
	if err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	defer func() {
		if closeErr := editor.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to save task: %w", closeErr)
		}
	}()

	if app.config.Cursor >= 0 {
		editor.SetCursor(app.config.Cursor)
	}
	editor.AddAtEnd(app.config.Appends...)
	for _, m := range app.config.Moves {
		editor.Move(m.From, m.To, m.Count)
		app.log.Debug("Instructions moved", "from", m.From, "to", m.To, "count", m.Count)
	}

	printListing(app.stdout, editor)

	if err := app.predict(editor); err != nil {
		return err
	}

	// 書き戻す前にプロセスへ保存してコンパイルを確認する
	modified, lines := editor.Modified(), editor.Commands()
	if err := editor.Close(); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	if !app.config.Write || !modified {
		return nil
	}
	return app.writeBack(lines)
}

// predict 予測結果を表示する。フックスクリプトがなければ呼び出しをそのまま表示
func (app *Application) predict(editor *task.Editor) error {
	fmt.Fprintln(app.stdout, "Prediction:")

	if app.settings.HookScript == "" {
		rec := &task.Recorder{}
		task.NewPredictor(rec, task.WithPredictorLogger(app.log)).PredictTask(editor, app.config.End)
		for _, call := range rec.Strings() {
			fmt.Fprintf(app.stdout, "  %s\n", call)
		}
		return nil
	}

	src, err := os.ReadFile(app.settings.HookScript)
	if err != nil {
		return fmt.Errorf("failed to read hook script: %w", err)
	}
	hook, err := starhook.Load(app.settings.HookScript, src,
		starhook.WithOutput(app.stdout),
		starhook.WithLogger(app.log),
	)
	if err != nil {
		return err
	}
	task.NewPredictor(hook, task.WithPredictorLogger(app.log)).PredictTask(editor, app.config.End)
	if err := hook.Err(); err != nil {
		return fmt.Errorf("hook script failed: %w", err)
	}
	return nil
}

// writeBack 編集後の行をタスクファイルに書き戻す
func (app *Application) writeBack(lines []string) error {
	if err := script.SaveFile(app.config.TaskPath, lines, app.encoding); err != nil {
		return err
	}
	app.log.Info("Task file written", "path", app.config.TaskPath, "lines", len(lines))
	return nil
}

// serve HTTPサーバーを起動し、ctxが終了するまで処理する
func (app *Application) serve(ctx context.Context) error {
	registry := vm.NewRegistry()
	metrics := observability.NewMetrics("unitask")

	// タスクファイルが指定されていれば最初のプロセスとして登録
	if app.config.TaskPath != "" {
		proc, err := app.newProcess(app.config.TaskPath, app.config.PC)
		if err != nil {
			return err
		}
		id := registry.Add(proc)
		app.log.Info("Process registered", "id", id, "name", proc.Name())
	}

	api := server.New(registry, metrics,
		server.WithCompiler(app.compiler),
		server.WithSalvageable(app.settings.Salvageable),
		server.WithLogger(app.log),
	)
	httpServer := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", app.settings.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	app.log.Info("Server listening", "addr", listener.Addr().String())
	if app.ready != nil {
		app.ready(listener.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	app.log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		app.log.Warn("Graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}
	return nil
}

// printListing タスクの一覧を表示する。">"はPC、"*"はカーソル
func printListing(w io.Writer, editor *task.Editor) {
	for i := 0; i <= editor.Len(); i++ {
		pcMark, cursorMark := " ", " "
		if i == editor.PC() {
			pcMark = ">"
		}
		if i == editor.Cursor() {
			cursorMark = "*"
		}
		if i == editor.Len() {
			if pcMark != " " || cursorMark != " " {
				fmt.Fprintf(w, "%s%s %3d\n", pcMark, cursorMark, i)
			}
			break
		}
		fmt.Fprintf(w, "%s%s %3d  %s\n", pcMark, cursorMark, i, editor.Instruction(i))
	}
}
