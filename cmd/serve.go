package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/msomdec/tagbatch/internal/handler"
	"github.com/msomdec/tagbatch/internal/service"
)

func newServeCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local store with its ops HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.OpsSecret == "" {
				return errors.New("OPS_TOKEN_SECRET environment variable is required")
			}
			auth, err := service.NewOpsAuth(cfg.OpsSecret)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			// A failed hydration leaves the server up; the ops surface reports it.
			if err := a.start(ctx); err != nil {
				slog.Error("hydration failed", "error", err)
			}

			ops := handler.NewOpsHandler(a.workspace, a.coord, a.syncer, a.hydrator, a.evictor)
			mux := http.NewServeMux()
			handler.RegisterRoutes(mux, ops, auth, a.db.SqlDB.PingContext)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           handler.SecurityHeaders(mux),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       120 * time.Second,
				MaxHeaderBytes:    1 << 20, // 1MB
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("server starting", "addr", srv.Addr, "session_id", a.workspace.Snapshot().SessionID)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
			}
			slog.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			slog.Info("server stopped")
			return nil
		},
	}
}
