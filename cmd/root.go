// Package cmd wires the tagbatch command tree.
package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the tagbatch command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cfg := &config{}
	var dbPath, prefsPath string

	cmd := &cobra.Command{
		Use:   "tagbatch",
		Short: "Local-first store for image tagging batches",
		Long: `tagbatch keeps an image tagging batch (groups, images, AI tags and the
uploaded bytes) in an on-device SQLite store so work survives restarts.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			if dbPath != "" {
				loaded.DBPath = dbPath
			}
			if prefsPath != "" {
				loaded.PrefsPath = prefsPath
			}
			*cfg = loaded

			logOpts := &slog.HandlerOptions{Level: cfg.LogLevel}
			slog.SetDefault(slog.New(slog.NewMultiHandler(
				slog.NewTextHandler(os.Stdout, logOpts),
				slog.NewJSONHandler(os.Stderr, logOpts),
			)))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DATABASE_PATH)")
	cmd.PersistentFlags().StringVar(&prefsPath, "prefs", "", "session preferences file (overrides PREFS_PATH)")

	cmd.AddCommand(
		newServeCmd(cfg),
		newStatsCmd(cfg),
		newImportCmd(cfg),
		newClearCmd(cfg),
		newNukeCmd(cfg),
		newEvictCmd(cfg),
		newTokenCmd(cfg),
	)
	return cmd
}
