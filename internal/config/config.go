// Package config loads tally settings from a YAML file.
//
// A file is checked against an embedded CUE schema before it is decoded, so
// a misspelled key or an unknown driver is reported with its position.
// Missing keys keep their Default values.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/retry"
)

//go:embed schema.cue
var schemaSource string

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

// Default store locations per driver.
const (
	DefaultSQLitePath = "tally.db"
	DefaultFilePath   = "tally.json"
)

// Config is the full tally configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Ledger LedgerConfig `yaml:"ledger"`
	Retry  RetryConfig  `yaml:"retry"`
	Log    LogConfig    `yaml:"log"`
}

// StoreConfig selects the substrate. Path is used by sqlite and file,
// DSN by postgres.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// LedgerConfig holds the balance policy.
type LedgerConfig struct {
	AllowNegative bool `yaml:"allow_negative"`
}

// RetryConfig describes the contention retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     string        `yaml:"backoff"`
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{Driver: DriverSQLite},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			Backoff:     "fixed",
			Interval:    retry.DefaultInterval,
		},
		Log: LogConfig{Format: "text", Level: "info"},
	}
}

// Load reads path on top of Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(path, data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse checks data against the schema and decodes it into cfg. Keys absent
// from data leave cfg unchanged. filename is only used in messages.
func Parse(filename string, data []byte, cfg *Config) error {
	if err := checkSchema(filename, data); err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}
	return cfg.Validate()
}

func checkSchema(filename string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return nil
}

// Validate checks the rules the schema cannot express and fills in the
// per-driver default path.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			c.Store.Path = DefaultSQLitePath
		}
	case DriverFile:
		if c.Store.Path == "" {
			c.Store.Path = DefaultFilePath
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("invalid config: store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid config: unknown store driver %q", c.Store.Driver)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("invalid config: retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Interval < 0 || c.Retry.MaxInterval < 0 {
		return errors.New("invalid config: retry intervals must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// RetryPolicy builds the retry.Policy described by c.Retry.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.Policy{MaxAttempts: c.Retry.MaxAttempts}
	switch c.Retry.Backoff {
	case "incremental":
		p.Backoff = retry.Incremental{Step: c.Retry.Interval}
	case "exponential":
		p.Backoff = retry.Exponential{Base: c.Retry.Interval, Max: c.Retry.MaxInterval, Jitter: true}
	default:
		p.Backoff = retry.Fixed{Interval: c.Retry.Interval}
	}
	return p
}

// Level parses c.Log.Level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid config: log.level: %w", err)
	}
	return level, nil
}

// Logger returns a logger writing to w in the configured format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
