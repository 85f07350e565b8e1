package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/swapchain/internal/config"
	"github.com/roach88/swapchain/internal/engine"
	"github.com/roach88/swapchain/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string
	ConfigPath string

	// Resolved in PersistentPreRunE.
	cfg    config.Config
	logger zerolog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the swapchain CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "swapchain",
		Short: "swapchain - multi-party barter chains",
		Long: `Find, propose and atomically execute multi-party barter chains.

Configuration is read from defaults, the optional --config CUE file, a
.env file and SWAPCHAIN_* environment variables, in that order. Flags
override all of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a CUE config file")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewProposeCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))
	cmd.AddCommand(NewRespondCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExecuteCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewExpireCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads the configuration, applies flag overrides and builds the
// logger. Logs always go to stderr so JSON output stays parseable.
func (o *RootOptions) resolve(stderr io.Writer) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Verbose {
		cfg.LogLevel = zerolog.LevelDebugValue
	}
	lvl, err := cfg.Level()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}

	var logger zerolog.Logger
	if cfg.LogFormat == config.FormatJSON {
		logger = zerolog.New(stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true, TimeFormat: time.RFC3339})
	}
	o.cfg = cfg
	o.logger = logger.Level(lvl).With().Timestamp().Logger()
	return nil
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// app is an engine over the configured database.
type app struct {
	store  *store.Store
	engine *engine.Engine
}

// open opens the database and builds an engine with the configured limits.
// The store serves as chain store, item directory and wallet.
func (o *RootOptions) open() (*app, error) {
	st, err := store.Open(o.cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	o.logger.Debug().Str("db", o.cfg.Database).Msg("database ready")
	eng := engine.New(st, st, st,
		engine.WithLimits(o.cfg.Limits()),
		engine.WithLogger(o.logger),
	)
	return &app{store: st, engine: eng}, nil
}

func (a *app) Close(log zerolog.Logger) {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("error closing database")
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
