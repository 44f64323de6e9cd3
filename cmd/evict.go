package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEvictCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "evict",
		Short: "Drop expired sessions and enforce the storage quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.db.Close()

			if err := a.workspace.Restore(); err != nil {
				return err
			}
			res, err := a.evictor.Enforce(ctx, a.workspace.Snapshot().SessionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d, over quota %d, freed %d bytes\n",
				len(res.Expired), len(res.OverQuota), res.BytesFreed)
			return nil
		},
	}
}
