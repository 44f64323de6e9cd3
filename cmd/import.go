package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msomdec/tagbatch/internal/domain"
)

func newImportCmd(cfg *config) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Add image files to the current batch and save it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.start(ctx); err != nil {
				return err
			}

			files := make([]domain.File, 0, len(args))
			for _, path := range args {
				f, err := domain.NewDiskFile(path, "")
				if err != nil {
					return err
				}
				files = append(files, f)
			}
			ids, err := a.workspace.AddFiles(files...)
			if err != nil {
				return err
			}
			if group != "" {
				groupID := a.workspace.CreateGroup(group)
				for _, id := range ids {
					if err := a.workspace.MoveImage(id, groupID); err != nil {
						return err
					}
				}
			}

			res, err := a.coord.ForceSave(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d images into session %s (%d blobs written)\n",
				len(ids), a.workspace.Snapshot().SessionID, res.BlobsWritten)
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "put the imported images into a new group with this title")
	return cmd
}
