package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/session"
)

const (
	// DiagnosticsFile is the artifact name written on a structural mismatch.
	DiagnosticsFile = "debug_page.html"

	fetchKindWarmup  = "warmup"
	fetchKindList    = "list"
	fetchKindArticle = "article"

	maxLoggedBody = 500
)

// Default pacing between the root visit and the real request.
var (
	DefaultListWarmup   = DelayRange{Min: 2 * time.Second, Max: 5 * time.Second}
	DefaultDetailWarmup = DelayRange{Min: 2 * time.Second, Max: 4 * time.Second}
)

// Config describes one crawlable site.
type Config struct {
	SiteID       string
	Name         string
	BaseURL      string
	RootURL      string
	RequestDelay time.Duration
	ListWarmup   DelayRange
	DetailWarmup DelayRange
}

// Deps bundles the collaborators of a SiteCrawler.
type Deps struct {
	Fetcher   Fetcher
	Parser    Parser
	Sessions  Sessions
	Artifacts ArtifactStore
	Retry     RetryPolicy
	Pauser    Pauser
	Observer  FetchObserver
	Rand      *rand.Rand
}

// SiteCrawler fetches list and detail pages for one site.
type SiteCrawler struct {
	cfg    Config
	deps   Deps
	jitter *jitter
	logger *zap.Logger
}

// New builds a SiteCrawler. Missing optional deps get defaults: no retries,
// real timers, no artifacts, no metrics.
func New(cfg Config, deps Deps, logger *zap.Logger) (*SiteCrawler, error) {
	if deps.Fetcher == nil || deps.Parser == nil || deps.Sessions == nil {
		return nil, errors.New("crawler requires a fetcher, parser and session pool")
	}
	if cfg.RootURL == "" {
		root, err := RootURL(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("derive root url: %w", err)
		}
		cfg.RootURL = root
	}
	if cfg.ListWarmup == (DelayRange{}) {
		cfg.ListWarmup = DefaultListWarmup
	}
	if cfg.DetailWarmup == (DelayRange{}) {
		cfg.DetailWarmup = DefaultDetailWarmup
	}
	if deps.Retry == nil {
		deps.Retry = NewExponentialRetryPolicy(0)
	}
	if deps.Pauser == nil {
		deps.Pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteCrawler{
		cfg:    cfg,
		deps:   deps,
		jitter: newJitter(deps.Rand),
		logger: logger.With(zap.String("site", cfg.SiteID)),
	}, nil
}

// Config returns the crawler's effective configuration.
func (c *SiteCrawler) Config() Config {
	return c.cfg
}

// ArticleLinks warms up, rotates the primary identity and fetches the listing
// page. Transport and status failures abort the site for this run. A broken
// list selector returns an empty slice, ErrStructuralMismatch, and saves the
// markup for inspection.
func (c *SiteCrawler) ArticleLinks(ctx context.Context) ([]Stub, error) {
	primary := c.deps.Sessions.Primary()
	c.warmup(ctx, primary)
	primary.Release()
	c.deps.Pauser.Pause(ctx, c.jitter.Between(c.cfg.ListWarmup))

	c.deps.Sessions.RefreshPrimary()

	primary = c.deps.Sessions.Primary()
	primary.SetHeader("Referer", c.cfg.RootURL)
	resp, err := c.fetch(ctx, fetchKindList, primary, c.cfg.BaseURL)
	primary.Release()
	if err != nil {
		fields := []zap.Field{zap.String("url", c.cfg.BaseURL), zap.Error(err)}
		if len(resp.Body) > 0 {
			fields = append(fields, zap.String("body", truncate(string(resp.Body), maxLoggedBody)))
		}
		c.logger.Error("list fetch failed", fields...)
		return nil, fmt.Errorf("fetch list %s: %w", c.cfg.BaseURL, err)
	}
	c.logger.Info("list fetched",
		zap.Int("status_code", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)

	stubs, err := c.deps.Parser.ExtractLinks(resp.Body)
	if errors.Is(err, ErrStructuralMismatch) {
		c.logger.Error("no articles matched the list selector, page structure may have changed", zap.Error(err))
		c.saveDiagnostics(ctx, resp.Body)
		return []Stub{}, err
	}
	if err != nil {
		return nil, fmt.Errorf("parse list %s: %w", c.cfg.BaseURL, err)
	}
	c.logger.Info("article links found", zap.Int("count", len(stubs)))
	return stubs, nil
}

// Article fetches and parses one article using the next pooled identity.
func (c *SiteCrawler) Article(ctx context.Context, stub Stub) (Article, error) {
	c.deps.Pauser.Pause(ctx, c.jitter.Around(c.cfg.RequestDelay))

	identity := c.deps.Sessions.Acquire()
	defer identity.Release()

	c.warmup(ctx, identity)
	c.deps.Pauser.Pause(ctx, c.jitter.Between(c.cfg.DetailWarmup))

	identity.SetHeader("Referer", c.cfg.RootURL)
	identity.SetHeader("User-Agent", c.deps.Sessions.RandomUserAgent())

	resp, err := c.fetch(ctx, fetchKindArticle, identity, stub.URL)
	if err != nil {
		return Article{URL: stub.URL, Title: stub.Title}, fmt.Errorf("fetch article %s: %w", stub.URL, err)
	}

	article, err := c.deps.Parser.ExtractArticle(resp.Body, stub.URL)
	if article.Title == "" {
		article.Title = stub.Title
	}
	if err != nil {
		return article, fmt.Errorf("parse article %s: %w", stub.URL, err)
	}
	return article, nil
}

// warmup visits the site root to collect baseline cookies. Failures are
// logged and otherwise ignored.
func (c *SiteCrawler) warmup(ctx context.Context, identity *session.Identity) {
	resp, err := c.fetchOnce(ctx, fetchKindWarmup, identity, c.cfg.RootURL)
	if err == nil && !resp.OK() {
		err = &StatusError{URL: c.cfg.RootURL, Code: resp.StatusCode}
	}
	if err != nil {
		c.logger.Warn("warmup visit failed",
			zap.Int("identity", identity.ID()),
			zap.Error(err),
		)
	}
}

func (c *SiteCrawler) fetch(ctx context.Context, kind string, identity *session.Identity, url string) (FetchResponse, error) {
	attempt := 1
	for {
		resp, err := c.fetchOnce(ctx, kind, identity, url)
		if err == nil && !resp.OK() {
			err = &StatusError{URL: url, Code: resp.StatusCode}
		}
		if err == nil {
			return resp, nil
		}
		if !c.deps.Retry.ShouldRetry(err, attempt) {
			return resp, err
		}
		delay := c.deps.Retry.Backoff(attempt)
		c.logger.Warn("request failed, retrying",
			zap.String("kind", kind),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		c.deps.Pauser.Pause(ctx, delay)
		attempt++
	}
}

func (c *SiteCrawler) fetchOnce(ctx context.Context, kind string, identity *session.Identity, url string) (FetchResponse, error) {
	start := time.Now()
	resp, err := c.deps.Fetcher.Fetch(ctx, FetchRequest{
		URL:      url,
		Headers:  identity.Headers(),
		Identity: identity,
	})
	if c.deps.Observer != nil {
		c.deps.Observer.ObserveFetch(c.cfg.SiteID, kind, resp.StatusCode, time.Since(start))
	}
	if err != nil && !errors.Is(err, ErrTransport) {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return resp, err
}

func (c *SiteCrawler) saveDiagnostics(ctx context.Context, body []byte) {
	if c.deps.Artifacts == nil || len(body) == 0 {
		return
	}
	location, err := c.deps.Artifacts.PutObject(ctx, path.Join(c.cfg.SiteID, DiagnosticsFile), "text/html; charset=utf-8", body)
	if err != nil {
		c.logger.Error("failed to save diagnostic page", zap.Error(err))
		return
	}
	c.logger.Info("saved page markup for inspection", zap.String("location", location))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
