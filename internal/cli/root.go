package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/config"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/filestore"
	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/records"
	"github.com/roach88/tally/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	Format        string // "json" | "text"
	ConfigPath    string
	DB            string // sqlite or file path, postgres DSN
	Driver        string
	AllowNegative bool
	LogFormat     string

	// Config is resolved before any subcommand runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tally CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tally",
		Short: "tally - accounts, vouchers and balances",
		Long: `A small bookkeeping ledger: named accounts with balances, and
vouchers that move an amount from one account to another.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}
			opts.Config = cfg
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.DB, "db", "", "database path, or DSN for postgres")
	flags.StringVar(&opts.Driver, "driver", "", "storage driver (sqlite|postgres|file)")
	flags.BoolVar(&opts.AllowNegative, "allow-negative", false, "allow balances below zero")
	flags.StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	// Add subcommands
	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewVoucherCommand(opts))
	cmd.AddCommand(NewInventoryCommand(opts))
	cmd.AddCommand(NewBillCommand(opts))
	cmd.AddCommand(NewBudgetCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// resolveConfig loads the config file and applies the flags the user set.
func resolveConfig(cmd *cobra.Command, opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Root().PersistentFlags()
	if flags.Changed("driver") {
		cfg.Store.Driver = opts.Driver
		// A path from the file belongs to the file's driver.
		if !flags.Changed("db") {
			cfg.Store.Path = ""
		}
	}
	if flags.Changed("db") {
		if cfg.Store.Driver == config.DriverPostgres {
			cfg.Store.DSN = opts.DB
		} else {
			cfg.Store.Path = opts.DB
		}
	}
	if flags.Changed("allow-negative") {
		cfg.Ledger.AllowNegative = opts.AllowNegative
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return config.Config{}, fmt.Errorf("invalid log format %q", cfg.Log.Format)
	}
	return cfg, nil
}

// substrate is what the CLI needs from a storage backend.
type substrate interface {
	ledger.Substrate
	ledger.Snapshotter
	ledger.RecordStore
	Close() error
}

// session is an open ledger for the duration of one command.
type session struct {
	sub       substrate
	engine    *engine.Engine
	processor *engine.Processor
	logger    *slog.Logger

	recordOpts []records.Option
}

// openSession opens the configured substrate and builds the engine on it.
func openSession(ctx context.Context, cfg config.Config, logw io.Writer) (*session, error) {
	logger := cfg.Logger(logw)

	var (
		sub substrate
		err error
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		sub, err = store.OpenPostgres(ctx, cfg.Store.DSN)
	case config.DriverFile:
		sub, err = filestore.Open(cfg.Store.Path)
	default:
		sub, err = store.Open(cfg.Store.Path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open "+cfg.Store.Driver+" store", err)
	}
	logger.Debug("store opened", "driver", cfg.Store.Driver)

	policy := cfg.RetryPolicy()
	policy.Logger = logger
	eng := engine.New(sub,
		engine.WithLogger(logger),
		engine.WithRetryPolicy(policy),
		engine.WithAllowNegative(cfg.Ledger.AllowNegative),
	)
	return &session{
		sub:       sub,
		engine:    eng,
		processor: engine.NewProcessor(eng, nil),
		logger:    logger,

		recordOpts: []records.Option{records.WithRetryPolicy(policy)},
	}, nil
}

func (s *session) Close() error {
	return s.sub.Close()
}

// withSession opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(s *session, out *OutputFormatter) error) error {
	s, err := openSession(cmd.Context(), opts.Config, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s, newFormatter(cmd, opts))
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// parseAmount parses a decimal command-line argument.
func parseAmount(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s %q: not a decimal number", name, s))
	}
	return d, nil
}
