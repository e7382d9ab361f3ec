package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"eventide/config"
	"eventide/directory"
	"eventide/models"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	File string
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate an empty user directory",
		Long: `Insert baseline users when the user directory is empty.

Without --file (or SEED_FILE) the five demo users are inserted. A directory
that already holds users is left alone.

Example:
  eventide seed
  eventide seed --file ./users.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.ValidateStore(); err != nil {
				return err
			}
			if opts.File != "" {
				opts.cfg.SeedFile = opts.File
			}

			st, err := openStores(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer st.close()

			n, err := seedUsers(cmd.Context(), directory.NewUsers(st.users), opts.cfg, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "YAML file of users to seed (overrides SEED_FILE)")

	return cmd
}

// seedUsers inserts the configured seed set into an empty directory. With
// force the demo users are used even when SEED_DEMO_USERS is off.
func seedUsers(ctx context.Context, users *directory.Users, cfg *config.Config, force bool) (int, error) {
	var seed []models.User
	switch {
	case cfg.SeedFile != "":
		loaded, err := directory.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return 0, err
		}
		seed = loaded
	case cfg.SeedDemoUsers || force:
		seed = directory.DemoUsers()
	default:
		return 0, nil
	}

	n, err := users.EnsureSeed(ctx, seed)
	if err != nil {
		return n, err
	}
	if n > 0 {
		slog.Info("seeded users", slog.Int("count", n))
	}
	return n, nil
}
