// -----------------------------------------------------------------------
// Application wiring - builds storage, catalog, sandbox, job service and
// handlers in dependency order
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/custodia/internal/catalog"
	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/handlers"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/jobs"
	"github.com/ternarybob/custodia/internal/models"
	"github.com/ternarybob/custodia/internal/sandbox"
	badgerstorage "github.com/ternarybob/custodia/internal/storage/badger"
)

// App holds all application dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Storage interfaces.StorageManager

	Resolver *catalog.Resolver
	Runner   interfaces.Runner
	Builder  *sandbox.WorkspaceBuilder

	JobService *jobs.Service
	Pool       *jobs.Pool
	Pruner     *jobs.Pruner

	JobHandler     *handlers.JobHandler
	UploadHandler  *handlers.UploadHandler
	CatalogHandler *handlers.CatalogHandler
	NodeHandler    *handlers.NodeHandler
	RequestHandler *handlers.RequestHandler
	StatusHandler  *handlers.StatusHandler
	AuditHandler   *handlers.AuditHandler
}

// New creates the application with all dependencies wired
func New(ctx context.Context, cfg *common.Config) (*App, error) {
	logger := common.GetLogger()

	storage, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	resolver, err := catalog.NewResolver(cfg.Data.Root, cfg.Data.Manifest)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to load data manifest: %w", err)
	}

	builder, err := sandbox.NewWorkspaceBuilder(cfg.Execution.WorkDir, cfg.Data.Root)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize workspace builder: %w", err)
	}

	runner := sandbox.SelectRunner(ctx, &cfg.Execution, cfg.Data.Root)
	service := jobs.NewService(cfg, storage, resolver, runner, builder)

	uploadHandler, err := handlers.NewUploadHandler(storage.UploadStorage(), storage.AuditStorage(), cfg.Data.UploadsDir, cfg.Node.NodeID, logger)
	if err != nil {
		storage.Close()
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Storage: storage,

		Resolver: resolver,
		Runner:   runner,
		Builder:  builder,

		JobService: service,
		Pool:       jobs.NewPool(service, cfg.Queue.WorkerCount),
		Pruner:     jobs.NewPruner(service, builder, cfg.Execution.PruneAge),

		JobHandler:     handlers.NewJobHandler(service, logger),
		UploadHandler:  uploadHandler,
		CatalogHandler: handlers.NewCatalogHandler(resolver, logger),
		NodeHandler:    handlers.NewNodeHandler(storage.NodeStorage(), resolver, cfg, logger),
		RequestHandler: handlers.NewRequestHandler(storage.RequestStorage(), storage.AuditStorage(), service, cfg.Node.NodeID, logger),
		StatusHandler:  handlers.NewStatusHandler(service, cfg, logger),
		AuditHandler:   handlers.NewAuditHandler(storage.AuditStorage(), logger),
	}

	if err := app.registerSelf(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to register local node in the registry")
	}

	return app, nil
}

// Start recovers persisted jobs, launches the workers and schedules pruning
func (a *App) Start(ctx context.Context) error {
	if err := a.JobService.Recover(ctx); err != nil {
		return err
	}
	a.Pool.Start(ctx)
	if a.Config.Execution.RetainWorkspaces {
		if err := a.Pruner.Start(a.Config.Execution.PruneSchedule); err != nil {
			return fmt.Errorf("failed to schedule workspace pruner: %w", err)
		}
	}
	return nil
}

// Close shuts down background work and the database
func (a *App) Close() error {
	if a.Config.Execution.RetainWorkspaces {
		a.Pruner.Stop()
	}
	a.Pool.Wait()
	if err := a.Storage.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close storage")
		return err
	}
	return nil
}

// registerSelf upserts this node into its own registry so discovery and
// audit rows always resolve the local node ID
func (a *App) registerSelf(ctx context.Context) error {
	return a.Storage.NodeStorage().UpsertNode(ctx, &models.Node{
		ID:          a.Config.Node.NodeID,
		Name:        a.Config.Node.NodeID,
		Institution: a.Config.Node.InstitutionName,
		EndpointURL: fmt.Sprintf("http://%s:%d", a.Config.Server.Host, a.Config.Server.Port),
		IsActive:    true,
		LastSeen:    time.Now().UTC(),
	})
}
