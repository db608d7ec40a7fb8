// Package config loads the optional CUE configuration file.
package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Defaults used when neither the file nor the command line set a value.
const (
	DefaultLogLevel = "info"
	DefaultEncoding = "utf-8"
	DefaultListen   = ":8080"
)

// schema closes the configuration: unknown fields are errors.
const schema = `
log_level?:   "debug" | "info" | "warn" | "error"
log_file?:    string
journal?:     bool
encoding?:    string & != ""
salvageable?: bool
hook_script?: string
listen?:      string & != ""
statements?: [...=~"^[A-Za-z_][A-Za-z0-9_]*$"]
`

// Config is the file configuration.
type Config struct {
	LogLevel    string   `json:"log_level"`
	LogFile     string   `json:"log_file"`
	Journal     bool     `json:"journal"`
	Encoding    string   `json:"encoding"`
	Salvageable bool     `json:"salvageable"`
	HookScript  string   `json:"hook_script"`
	Listen      string   `json:"listen"`
	Statements  []string `json:"statements"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Encoding: DefaultEncoding,
		Listen:   DefaultListen,
	}
}

// Load reads and validates the CUE file at path.
func Load(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(path, content)
}

// Parse validates CUE source against the schema and decodes it. Fields the
// source leaves out keep their Default values.
func Parse(filename string, content []byte) (Config, error) {
	ctx := cuecontext.New()

	schemaValue := ctx.CompileString("close({" + schema + "})")
	if err := schemaValue.Err(); err != nil {
		return Config{}, fmt.Errorf("invalid config schema: %w", err)
	}

	value := ctx.CompileBytes(content, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", filename, err)
	}

	unified := schemaValue.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config %s: %w", filename, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Encoding == "" {
		c.Encoding = d.Encoding
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
}
