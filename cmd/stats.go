package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd(cfg *config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts and per-session usage of the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.db.Close()

			counts, err := a.syncer.Counts(ctx)
			if err != nil {
				return err
			}
			usage, err := a.db.Usage(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"counts": counts, "sessions": usage})
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "sessions\t%d\n", counts.Sessions)
			fmt.Fprintf(tw, "groups\t%d\n", counts.Groups)
			fmt.Fprintf(tw, "images\t%d\n", counts.Images)
			fmt.Fprintf(tw, "blobs\t%d\n", counts.Blobs)
			fmt.Fprintf(tw, "originals\t%d\n", counts.Originals)
			fmt.Fprintf(tw, "stored bytes\t%d\n", counts.BlobBytes)
			if len(usage) > 0 {
				fmt.Fprintln(tw)
				fmt.Fprintln(tw, "SESSION\tUPDATED\tBYTES")
				for _, u := range usage {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", u.SessionID, u.UpdatedAt.Format("2006-01-02 15:04"), u.Bytes)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
