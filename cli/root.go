// Package cli wires configuration, storage and the HTTP server into the
// eventide command.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"eventide/config"
	"eventide/logger"
)

// RootOptions holds state shared by every command.
type RootOptions struct {
	LogLevel string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root command for the eventide CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "eventide",
		Short: "Eventide - events and RSVPs",
		Long:  "Eventide serves the event planning API: invitations, visibility and RSVPs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if opts.LogLevel != "" {
				cfg.LogLevel = opts.LogLevel
			}
			opts.cfg = cfg
			opts.logger = logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
			slog.SetDefault(opts.logger)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
