// Package syncer drives one crawl-clean-publish pass over every configured
// site and reports the outcome.
package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
	"github.com/JakeFAU/newsdesk-sync/internal/metrics"
	"github.com/JakeFAU/newsdesk-sync/internal/sites"
)

// SiteCrawler discovers and fetches articles for one site.
type SiteCrawler interface {
	Config() crawler.Config
	ArticleLinks(ctx context.Context) ([]crawler.Stub, error)
	Article(ctx context.Context, stub crawler.Stub) (crawler.Article, error)
}

// Resolver maps a site id to its crawler.
type Resolver interface {
	Crawler(id string) (SiteCrawler, error)
}

// Publisher uploads one cleaned article.
type Publisher interface {
	Publish(ctx context.Context, article crawler.Article) bool
}

// Cleaner normalizes article text.
type Cleaner interface {
	Clean(text string) string
}

// Recorder receives per-article and per-run outcomes.
type Recorder interface {
	ObserveArticle(site, outcome string)
	ObserveRun(status string, successRate float64, finished time.Time)
}

// History keeps finished run summaries.
type History interface {
	Record(summary RunSummary)
}

// IDGenerator creates run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps bundles the orchestrator's collaborators. Recorder, History and IDs
// are optional.
type Deps struct {
	Resolver  Resolver
	Publisher Publisher
	Cleaner   Cleaner
	Recorder  Recorder
	History   History
	IDs       IDGenerator
}

// Orchestrator runs the sync pipeline over a fixed list of site ids.
type Orchestrator struct {
	siteIDs []string
	deps    Deps
	now     func() time.Time
	logger  *zap.Logger
}

// New builds an Orchestrator. siteIDs are visited in the given order.
func New(siteIDs []string, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Resolver == nil || deps.Publisher == nil || deps.Cleaner == nil {
		return nil, errors.New("syncer requires a resolver, publisher and cleaner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		siteIDs: append([]string(nil), siteIDs...),
		deps:    deps,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// Run performs one pass. Cancelling ctx stops the run at the next article or
// site boundary; the article in flight finishes first.
func (o *Orchestrator) Run(ctx context.Context) RunSummary {
	summary := RunSummary{
		RunID:     o.newRunID(),
		StartedAt: o.now(),
	}
	logger := o.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("sync run started", zap.Strings("sites", o.siteIDs))

	tracker := crawler.NewVisitTracker()
	for _, id := range o.siteIDs {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}
		site, interrupted := o.runSite(ctx, id, tracker, logger.With(zap.String("site", id)))
		summary.Sites = append(summary.Sites, site)
		summary.TotalFound += site.Found
		summary.Succeeded += site.Succeeded
		summary.Failed += site.Failed
		if interrupted {
			summary.Interrupted = true
			break
		}
	}

	finished := o.now()
	summary.Duration = finished.Sub(summary.StartedAt)
	o.finish(summary, finished, logger)
	return summary
}

func (o *Orchestrator) runSite(
	ctx context.Context,
	id string,
	tracker *crawler.VisitTracker,
	logger *zap.Logger,
) (SiteSummary, bool) {
	result := SiteSummary{Site: id}

	c, err := o.deps.Resolver.Crawler(id)
	if err != nil {
		if errors.Is(err, sites.ErrUnknownSite) {
			logger.Warn("no crawler registered for site, skipping")
		} else {
			logger.Error("failed to build crawler", zap.Error(err))
		}
		result.Error = err.Error()
		return result, false
	}

	// Requests already started are not cut short by shutdown.
	ioCtx := context.WithoutCancel(ctx)

	stubs, err := c.ArticleLinks(ioCtx)
	if err != nil {
		logger.Error("failed to collect article links", zap.Error(err))
		result.Error = err.Error()
	}
	stubs = dedupe(stubs, tracker, logger)
	if len(stubs) == 0 {
		logger.Info("no articles found")
		return result, false
	}
	result.Found = len(stubs)
	source := c.Config().Name

	for i, stub := range stubs {
		if ctx.Err() != nil {
			logger.Info("shutdown requested, stopping before next article",
				zap.Int("processed", i),
				zap.Int("remaining", len(stubs)-i),
			)
			return result, true
		}

		article, err := c.Article(ioCtx, stub)
		if err != nil {
			result.Failed++
			o.observe(id, metrics.OutcomeCrawlFailed)
			logger.Warn("failed to crawl article", zap.String("url", stub.URL), zap.Error(err))
			continue
		}

		article.Body = o.deps.Cleaner.Clean(article.Body)
		article.Source = source
		if o.deps.Publisher.Publish(ioCtx, article) {
			result.Succeeded++
			o.observe(id, metrics.OutcomePublished)
			continue
		}
		result.Failed++
		o.observe(id, metrics.OutcomePublishFailed)
	}
	return result, false
}

func (o *Orchestrator) finish(summary RunSummary, finished time.Time, logger *zap.Logger) {
	status := metrics.RunCompleted
	if summary.Interrupted {
		status = metrics.RunInterrupted
	}
	if o.deps.Recorder != nil {
		o.deps.Recorder.ObserveRun(status, summary.SuccessRate(), finished)
	}
	if o.deps.History != nil {
		o.deps.History.Record(summary)
	}
	logger.Info("sync run finished",
		zap.String("status", status),
		zap.Int("total_found", summary.TotalFound),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped()),
		zap.Float64("success_rate", summary.SuccessRate()),
		zap.Duration("duration", summary.Duration),
	)
}

func (o *Orchestrator) observe(site, outcome string) {
	if o.deps.Recorder != nil {
		o.deps.Recorder.ObserveArticle(site, outcome)
	}
}

func (o *Orchestrator) newRunID() string {
	if o.deps.IDs == nil {
		return o.now().UTC().Format("20060102T150405Z")
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		o.logger.Warn("failed to generate run id", zap.Error(err))
		return o.now().UTC().Format("20060102T150405Z")
	}
	return id
}

// dedupe drops stubs already visited earlier in the run.
func dedupe(stubs []crawler.Stub, tracker *crawler.VisitTracker, logger *zap.Logger) []crawler.Stub {
	out := stubs[:0:0]
	for _, stub := range stubs {
		if !tracker.MarkIfNew(stub.URL) {
			logger.Debug("skipping duplicate article", zap.String("url", stub.URL))
			continue
		}
		out = append(out, stub)
	}
	return out
}
