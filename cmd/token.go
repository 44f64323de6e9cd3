package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/msomdec/tagbatch/internal/service"
)

func newTokenCmd(cfg *config) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the destructive ops routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.OpsSecret == "" {
				return errors.New("OPS_TOKEN_SECRET environment variable is required")
			}
			auth, err := service.NewOpsAuth(cfg.OpsSecret)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(subject, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "who the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
