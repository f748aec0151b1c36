// Package cli contains the launchpadctl command constructors.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/launchpad-portal/launchpad/internal/app"
)

// Options replace the process defaults of the commands. Zero values fall back
// to the environment, the real backend and the process stdio.
type Options struct {
	LoadConfig func() (*app.Config, error)
	Open       func(ctx context.Context, cfg *app.Config, logger *slog.Logger) (Backend, error)
	Stdin      io.Reader
	Stderr     io.Writer
}

func (o Options) withDefaults() Options {
	if o.LoadConfig == nil {
		o.LoadConfig = app.LoadConfig
	}
	if o.Open == nil {
		o.Open = OpenBackend
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

type runtimeKey struct{}

type runState struct {
	cfg    *app.Config
	logger *slog.Logger
}

// RootCommand instantiates the root command, with all sub-commands bound.
func RootCommand(opts Options) *cobra.Command {
	opts = opts.withDefaults()
	cmd := &cobra.Command{
		Use:          "launchpadctl [command] [flags]",
		Short:        "Operator tool for the launchpad portal",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger := app.NewLogger(cfg)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, runState{cfg: cfg, logger: logger}))
			return nil
		},
	}
	cmd.SetIn(opts.Stdin)
	cmd.SetErr(opts.Stderr)

	cmd.AddCommand(
		migrateCommand(opts),
		userCommand(opts),
	)
	return cmd
}

// withBackend opens the backend for the duration of fn.
func withBackend(cmd *cobra.Command, opts Options, fn func(Backend, *slog.Logger) error) (runErr error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(runState)
	if !ok {
		return fmt.Errorf("configuration not loaded")
	}
	backend, err := opts.Open(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}()
	return fn(backend, rt.logger)
}

func migrateCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, opts, func(b Backend, logger *slog.Logger) error {
				if err := b.Migrate(cmd.Context()); err != nil {
					return err
				}
				logger.InfoContext(cmd.Context(), "migrations applied")
				return nil
			})
		},
	}
}
