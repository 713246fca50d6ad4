package commands

import (
	"fmt"
	"time"

	"github.com/benvon/nextstep/internal/config"
	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/services/session"
	"github.com/spf13/cobra"
)

// NewTokenCmd creates the token command, which mints a development session token
func NewTokenCmd() *cobra.Command {
	var (
		owner string
		email string
		name  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development session token",
		Long:  "Sign a session token with SESSION_SECRET for use as an Authorization: Bearer header",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.SessionTTL
			}

			token, expires, err := session.NewManager(cfg.SessionSecret, ttl).Issue(models.User{
				ID:    owner,
				Email: email,
				Name:  name,
			})
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "Expires: %s\n", expires.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id (sub claim)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&name, "name", "", "Name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to SESSION_TTL)")
	return cmd
}
