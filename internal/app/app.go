// Package app builds the long-lived services of the sync process and runs
// them until shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/JakeFAU/newsdesk-sync/internal/api"
	"github.com/JakeFAU/newsdesk-sync/internal/cleaner"
	"github.com/JakeFAU/newsdesk-sync/internal/config"
	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
	collyfetcher "github.com/JakeFAU/newsdesk-sync/internal/fetcher/colly"
	"github.com/JakeFAU/newsdesk-sync/internal/id/uuid"
	"github.com/JakeFAU/newsdesk-sync/internal/metrics"
	"github.com/JakeFAU/newsdesk-sync/internal/publisher"
	memorypublisher "github.com/JakeFAU/newsdesk-sync/internal/publisher/memory"
	"github.com/JakeFAU/newsdesk-sync/internal/scheduler"
	"github.com/JakeFAU/newsdesk-sync/internal/sites"
	"github.com/JakeFAU/newsdesk-sync/internal/storage/gcs"
	localstorage "github.com/JakeFAU/newsdesk-sync/internal/storage/local"
	memorystorage "github.com/JakeFAU/newsdesk-sync/internal/storage/memory"
	"github.com/JakeFAU/newsdesk-sync/internal/storage/postgres"
	"github.com/JakeFAU/newsdesk-sync/internal/syncer"
)

// archiveTimeout bounds the Postgres write made after each run.
const archiveTimeout = 10 * time.Second

// Options adjust how the App is assembled.
type Options struct {
	// DryRun records documents in memory instead of uploading them.
	DryRun bool

	// Overrides, mainly for tests.
	Fetcher   crawler.Fetcher
	Publisher syncer.Publisher
	Pauser    crawler.Pauser
	Artifacts crawler.ArtifactStore
	Registry  *sites.Registry

	// GCSOptions are passed to the GCS client when diagnostics.provider is gcs.
	GCSOptions []option.ClientOption
}

// App holds the services shared across runs.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *syncer.Orchestrator
	runs         *memorystorage.RunStore
	archive      *postgres.RunArchive
	gcs          *gcs.BlobStore
	gcsOptions   []option.ClientOption
	dryRun       *memorypublisher.Publisher
}

// New wires every component from cfg. Call Close when done.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, gcsOptions: opts.GCSOptions}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{Timeout: cfg.HTTP.Timeout})
	}

	artifacts := opts.Artifacts
	if artifacts == nil {
		store, err := a.buildArtifacts(ctx)
		if err != nil {
			return nil, err
		}
		artifacts = store
	}

	pub, err := a.buildPublisher(opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = sites.Default()
	}
	for _, id := range cfg.SiteIDs() {
		if !registry.Has(id) {
			logger.Warn("configured site has no crawler and will be skipped", zap.String("site", id))
		}
	}
	resolver := syncer.NewRegistryResolver(registry, cfg.Sites, sites.Shared{
		Fetcher:         fetcher,
		Artifacts:       artifacts,
		Observer:        metrics.NewFetchObserver(),
		Pauser:          opts.Pauser,
		SessionPoolSize: cfg.HTTP.SessionPoolSize,
		Logger:          logger.Named("crawler"),
	})

	a.runs = memorystorage.NewRunStore(memorystorage.DefaultRunCapacity)
	if cfg.History.DSN != "" {
		if err := a.openArchive(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.orchestrator, err = syncer.New(cfg.SiteIDs(), syncer.Deps{
		Resolver:  resolver,
		Publisher: pub,
		Cleaner:   cleaner.New(nil),
		Recorder:  metrics.NewSyncRecorder(),
		History:   a,
		IDs:       uuid.New(),
	}, logger.Named("sync"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	return a, nil
}

// openArchive connects to Postgres and replays recent runs into memory so
// the status endpoints survive restarts.
func (a *App) openArchive(ctx context.Context) error {
	archive, err := postgres.NewRunArchive(ctx, postgres.Config{
		DSN:      a.cfg.History.DSN,
		Table:    a.cfg.History.Table,
		MaxConns: a.cfg.History.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("open run archive: %w", err)
	}
	a.archive = archive

	if a.cfg.History.Preload == 0 {
		return nil
	}
	recent, err := archive.Recent(ctx, min(a.cfg.History.Preload, memorystorage.DefaultRunCapacity))
	if err != nil {
		a.logger.Warn("failed to preload run history", zap.Error(err))
		return nil
	}
	for i := len(recent) - 1; i >= 0; i-- {
		a.runs.Record(recent[i])
	}
	a.logger.Info("preloaded run history", zap.Int("runs", len(recent)))
	return nil
}

// Record keeps summary in memory and archives it when Postgres is configured.
func (a *App) Record(summary syncer.RunSummary) {
	a.runs.Record(summary)
	if a.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := a.archive.Save(ctx, summary); err != nil {
		a.logger.Error("failed to archive run", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}

// Close releases external connections.
func (a *App) Close() {
	if a.archive != nil {
		a.archive.Close()
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("failed to close gcs client", zap.Error(err))
		}
	}
}

func (a *App) buildArtifacts(ctx context.Context) (crawler.ArtifactStore, error) {
	diag := a.cfg.Diagnostics
	switch diag.Provider {
	case "", config.DiagnosticsLocal:
		local, err := localstorage.New(localstorage.Config{BaseDir: diag.Dir})
		if err != nil {
			return nil, fmt.Errorf("create diagnostics store: %w", err)
		}
		return local, nil
	case config.DiagnosticsGCS:
		a.logger.Info("writing diagnostics to GCS", zap.String("bucket", diag.GCS.Bucket))
		store, err := gcs.Open(ctx, gcs.Config{Bucket: diag.GCS.Bucket, Prefix: diag.GCS.Prefix}, a.gcsOptions...)
		if err != nil {
			return nil, fmt.Errorf("create diagnostics store: %w", err)
		}
		a.gcs = store
		return store, nil
	default:
		return nil, fmt.Errorf("unknown diagnostics provider %q", diag.Provider)
	}
}

func (a *App) buildPublisher(opts Options) (syncer.Publisher, error) {
	if opts.Publisher != nil {
		return opts.Publisher, nil
	}
	if opts.DryRun {
		a.logger.Info("dry run: documents will not be uploaded")
		a.dryRun = memorypublisher.New()
		return a.dryRun, nil
	}
	if err := a.cfg.Indexer.Validate(); err != nil {
		return nil, fmt.Errorf("invalid indexer config: %w", err)
	}
	idx := a.cfg.Indexer
	pub, err := publisher.New(publisher.Config{
		APIKey:            idx.APIKey,
		Endpoint:          idx.APIEndpoint,
		DatasetID:         idx.DatasetID,
		IndexingTechnique: idx.IndexingTechnique,
		MaxTokens:         idx.MaxTokens,
		Uploader:          idx.Uploader,
		Category:          idx.Category,
		Timeout:           idx.Timeout,
		PublishRPS:        idx.PublishRPS,
	}, a.logger.Named("publisher"))
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	return pub, nil
}

// RunOnce performs a single sync pass.
func (a *App) RunOnce(ctx context.Context) syncer.RunSummary {
	return a.orchestrator.Run(ctx)
}

// Run serves the status endpoint when configured and runs the scheduler
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	sched, err := scheduler.New(scheduler.Config{
		Spec:         a.cfg.Schedule.Cron,
		PollInterval: a.cfg.Schedule.PollInterval,
	}, func(ctx context.Context) {
		a.orchestrator.Run(ctx)
	}, a.logger.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Addr != "" {
		server := api.NewServer(a.runs, a.logger.Named("api"))
		g.Go(func() error {
			return server.ListenAndServe(gctx, a.cfg.Server.Addr)
		})
	}
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Runs exposes the run history.
func (a *App) Runs() *memorystorage.RunStore {
	return a.runs
}

// DryRunDocuments returns the documents recorded by a dry run.
func (a *App) DryRunDocuments() []memorypublisher.Document {
	if a.dryRun == nil {
		return nil
	}
	return a.dryRun.Documents()
}
