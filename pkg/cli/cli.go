package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/zurustar/unitask/pkg/logger"
	"github.com/zurustar/unitask/pkg/task"
)

// Move は --move で指定された移動操作
type Move struct {
	From  int
	To    int
	Count int
}

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	TaskPath   string   // タスクファイルのパス
	ConfigPath string   // CUE設定ファイルのパス
	LogLevel   string   // ログレベル（空なら設定ファイルに従う）
	Encoding   string   // タスクファイルの文字コード（空なら設定ファイルに従う）
	HookScript string   // 予測フックのStarlarkスクリプト
	Listen     string   // HTTPサーバーの待ち受けアドレス（空なら設定ファイルに従う）
	PC         int      // 初期PC
	Cursor     int      // 初期カーソル（-1はPCと同じ）
	End        int      // 予測の終了PC
	Appends    []string // 末尾に追加する行
	Moves      []Move   // 順に適用する移動操作
	Salvage    bool     // サルベージマーカーを付けて保存
	Write      bool     // 変更をタスクファイルに書き戻す
	Serve      bool     // HTTPサーバーを起動
	ShowHelp   bool     // ヘルプ表示フラグ
}

// stringList 繰り返し指定できる文字列フラグ
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, "; ")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// moveList 繰り返し指定できる "from,to,count" 形式のフラグ
type moveList []Move

func (l *moveList) String() string {
	parts := make([]string, len(*l))
	for i, m := range *l {
		parts[i] = fmt.Sprintf("%d,%d,%d", m.From, m.To, m.Count)
	}
	return strings.Join(parts, " ")
}

func (l *moveList) Set(value string) error {
	m, err := ParseMove(value)
	if err != nil {
		return err
	}
	*l = append(*l, m)
	return nil
}

// ParseMove "from,to,count" 形式の文字列をMoveに変換
func ParseMove(value string) (Move, error) {
	fields := strings.Split(value, ",")
	if len(fields) != 3 {
		return Move{}, fmt.Errorf("move must be from,to,count: %q", value)
	}
	var nums [3]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Move{}, fmt.Errorf("move must be from,to,count: %q", value)
		}
		nums[i] = n
	}
	return Move{From: nums[0], To: nums[1], Count: nums[2]}, nil
}

// boolFlags 値を取らないフラグ
var boolFlags = map[string]bool{
	"-h": true, "--h": true, "-help": true, "--help": true,
	"-salvage": true, "--salvage": true,
	"-write": true, "--write": true,
	"-serve": true, "--serve": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("unitask", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	config := &Config{}
	var appends stringList
	var moves moveList

	fs.StringVar(&config.ConfigPath, "config", "", "CUE設定ファイル")
	fs.StringVar(&config.ConfigPath, "c", "", "CUE設定ファイル（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "", "ログレベル（短縮形）")
	fs.StringVar(&config.Encoding, "encoding", "", "タスクファイルの文字コード")
	fs.StringVar(&config.HookScript, "hook", "", "予測フックのStarlarkスクリプト")
	fs.StringVar(&config.Listen, "listen", "", "HTTPサーバーの待ち受けアドレス")
	fs.IntVar(&config.PC, "pc", 0, "初期PC")
	fs.IntVar(&config.Cursor, "cursor", -1, "初期カーソル")
	fs.IntVar(&config.End, "end", task.NoLimit, "予測の終了PC")
	fs.Var(&appends, "append", "末尾に追加する行（複数指定可）")
	fs.Var(&moves, "move", "from,to,count の移動（複数指定可）")
	fs.BoolVar(&config.Salvage, "salvage", false, "サルベージマーカーを付けて保存")
	fs.BoolVar(&config.Write, "write", false, "変更をタスクファイルに書き戻す")
	fs.BoolVar(&config.Serve, "serve", false, "HTTPサーバーを起動")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}
	config.Appends = appends
	config.Moves = moves

	// 環境変数からの設定（コマンドラインフラグが優先）
	if config.LogLevel == "" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}
	if config.ConfigPath == "" {
		config.ConfigPath = os.Getenv("UNITASK_CONFIG")
	}
	if config.Listen == "" {
		config.Listen = os.Getenv("UNITASK_LISTEN")
	}

	// ログレベルの検証
	if config.LogLevel != "" {
		if _, err := logger.ParseLevel(config.LogLevel); err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
		}
	}

	if config.PC < 0 {
		return nil, fmt.Errorf("pc must be non-negative, got %d", config.PC)
	}
	if config.End < 0 {
		return nil, fmt.Errorf("end must be non-negative, got %d", config.End)
	}
	for _, line := range config.Appends {
		if !task.IsValidCommand(line) {
			return nil, fmt.Errorf("not a valid task command: %q", line)
		}
	}

	// 位置引数（タスクファイルのパス）
	if fs.NArg() > 0 {
		config.TaskPath = fs.Arg(0)
	}

	if config.TaskPath == "" && !config.Serve && !config.ShowHelp {
		return nil, fmt.Errorf("a task file or --serve is required")
	}
	if config.Write && config.TaskPath == "" {
		return nil, fmt.Errorf("--write needs a task file")
	}

	return config, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string
	terminated := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" 以降はすべて位置引数
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			terminated = true
			break
		}

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)

			// --flag=value 形式や値を取らないフラグは次の引数を消費しない
			if strings.Contains(arg, "=") || boolFlags[arg] {
				continue
			}
			// 値は負の数や'-'で始まる行の場合もあるので、そのまま次の引数を値とする
			if i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	if terminated {
		flags = append(flags, "--")
	}
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, `unitask - Unit Task Editor and Predictor

Usage:
  unitask [options] <task-file>
  unitask --serve [options] [task-file]

Arguments:
  task-file     タスクファイルのパス（1行に1命令）
                ファイル名の大文字小文字は区別しない

Options:
  -c, --config <file>         CUE設定ファイル
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --encoding <name>           タスクファイルの文字コード（デフォルト: utf-8）
  --pc <n>                    初期PC（デフォルト: 0）
  --cursor <n>                初期カーソル（デフォルト: PCと同じ）
  --append <line>             末尾に行を追加（複数指定可）
  --move <from,to,count>      命令ブロックを移動（複数指定可、指定順に適用）
  --end <n>                   予測を終了するPC（デフォルト: 末尾まで）
  --hook <file>               予測フックのStarlarkスクリプト
  --salvage                   サルベージマーカーを付けて保存
  --write                     変更をタスクファイルに書き戻す
  --serve                     HTTPサーバーを起動
  --listen <addr>             待ち受けアドレス（デフォルト: :8080）
  -h, --help                  このヘルプを表示

Environment Variables:
  LOG_LEVEL=<level>           ログレベル
  UNITASK_CONFIG=<file>       CUE設定ファイル
  UNITASK_LISTEN=<addr>       HTTPサーバーの待ち受けアドレス

Examples:
  unitask patrol.task                           タスクと予測を表示
  unitask --pc 2 --end 5 patrol.task            PC 2から5の手前まで予測
  unitask --move 0,4,2 --write patrol.task      先頭2命令を移動して保存
  unitask --append "Notify 'done'" patrol.task  末尾に命令を追加
  unitask --hook hook.star patrol.task          Starlarkフックで予測
  unitask --serve --listen :9090                HTTPサーバーを起動
`)
}
