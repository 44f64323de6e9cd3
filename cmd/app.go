package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/msomdec/tagbatch/internal/repository/sqlite"
	"github.com/msomdec/tagbatch/internal/service"
	"github.com/msomdec/tagbatch/internal/workspace"
)

// app is the assembled persistence stack shared by the commands.
type app struct {
	db        *sqlite.DB
	workspace *workspace.Workspace
	syncer    *service.SyncService
	hydrator  *service.HydrationService
	evictor   *service.Evictor
	coord     *service.Coordinator
}

// openApp opens and migrates the database and builds the services on top.
// The workspace is created but not restored.
func openApp(ctx context.Context, cfg *config) (*app, error) {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("database migrations applied", "path", cfg.DBPath)

	a := &app{
		db:        db,
		workspace: workspace.New(cfg.PrefsPath),
		syncer:    service.NewSyncService(db),
		hydrator:  service.NewHydrationService(db),
		evictor:   service.NewEvictor(db, cfg.SessionTTL, cfg.QuotaBytes),
	}
	a.coord = service.NewCoordinator(service.CoordinatorConfig{
		Container: a.workspace,
		Hydrator:  a.hydrator,
		Syncer:    a.syncer,
		Evictor:   a.evictor,
		Debounce:  cfg.Debounce,
	})
	return a, nil
}

// start restores the workspace and waits until the coordinator has
// hydrated it and is mirroring changes.
func (a *app) start(ctx context.Context) error {
	a.coord.Start(ctx)
	if err := a.workspace.Restore(); err != nil {
		return fmt.Errorf("restore workspace: %w", err)
	}
	select {
	case <-a.coord.Ready():
		return a.coord.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *app) close(ctx context.Context) {
	if err := a.coord.Close(ctx); err != nil {
		slog.Error("final sync failed", "error", err)
	}
	if err := a.db.Close(); err != nil {
		slog.Error("close database", "error", err)
	}
}
