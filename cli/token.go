package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eventide/models"
	"eventide/utils"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Subject  string
	Email    string
	Name     string
	Nickname string
	Picture  string
	TTL      time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		Long: `Sign an HS256 bearer token with JWT_SECRET, standing in for the identity
provider during local development.

Example:
  eventide token --sub user-1 --email alex@eventide.app --name "Alex Starr"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}

			tok, err := utils.GenerateToken([]byte(opts.cfg.JWTSecret), models.IdentityClaim{
				Subject:  opts.Subject,
				Email:    opts.Email,
				Name:     opts.Name,
				Nickname: opts.Nickname,
				Picture:  opts.Picture,
			}, utils.TokenOptions{
				Issuer:   opts.cfg.JWTIssuer,
				Audience: opts.cfg.JWTAudience,
				TTL:      opts.TTL,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "sub", "", "subject id (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&opts.Name, "name", "", "name claim")
	cmd.Flags().StringVar(&opts.Nickname, "nickname", "", "nickname claim")
	cmd.Flags().StringVar(&opts.Picture, "picture", "", "picture URL claim")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 2*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}
