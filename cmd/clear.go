package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored copy of the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.workspace.Restore(); err != nil {
				return err
			}
			id := a.workspace.Snapshot().SessionID
			if err := a.syncer.ClearSessionData(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared session %s\n", id)
			return nil
		},
	}
}

func newNukeCmd(cfg *config) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "nuke",
		Short: "Wipe every session and stored file from the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to wipe the local store without --yes")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.db.Close()

			if err := a.syncer.ClearAllData(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "local store wiped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}
