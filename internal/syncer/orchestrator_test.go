package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/cleaner"
	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
	"github.com/JakeFAU/newsdesk-sync/internal/metrics"
	"github.com/JakeFAU/newsdesk-sync/internal/publisher"
	"github.com/JakeFAU/newsdesk-sync/internal/sites"
)

func TestRun_CountsParseFailure(t *testing.T) {
	t.Parallel()

	site := newFakeSite("reuters", "Reuters", 3)
	site.failures[site.stubs[1].URL] = fmt.Errorf("parse article: %w", crawler.ErrParseFailure)
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	hist := &fakeHistory{}

	o := newTestOrchestrator(t, []string{"reuters"}, fakeResolver{"reuters": site}, pub, rec, hist)
	summary := o.Run(context.Background())

	require.Equal(t, 3, summary.TotalFound)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 0, summary.Skipped())
	require.False(t, summary.Interrupted)
	require.InDelta(t, 2.0/3.0, summary.SuccessRate(), 1e-9)
	require.Equal(t, "run-1", summary.RunID)

	require.Equal(t, map[string]int{
		metrics.OutcomePublished:   2,
		metrics.OutcomeCrawlFailed: 1,
	}, rec.articleCounts("reuters"))
	require.Equal(t, []string{metrics.RunCompleted}, rec.runs)
	require.Len(t, hist.summaries, 1)
	require.Equal(t, summary.RunID, hist.summaries[0].RunID)
}

func TestRun_CleansBodyAndStampsSource(t *testing.T) {
	t.Parallel()

	site := newFakeSite("reuters", "Reuters", 1)
	site.bodies[site.stubs[0].URL] = "  Stocks   rose.\n\nPurchase Licensing Rights  "
	pub := &fakePublisher{}

	o := newTestOrchestrator(t, []string{"reuters"}, fakeResolver{"reuters": site}, pub, nil, nil)
	summary := o.Run(context.Background())

	require.Equal(t, 1, summary.Succeeded)
	published := pub.articles()
	require.Len(t, published, 1)
	require.Equal(t, "Stocks rose.", published[0].Body)
	require.Equal(t, "Reuters", published[0].Source)
}

func TestRun_PublishServerErrorCountsFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"indexing backend down"}`))
	}))
	t.Cleanup(srv.Close)

	pub, err := publisher.New(publisher.Config{APIKey: "k", Endpoint: srv.URL, DatasetID: "ds"}, zap.NewNop())
	require.NoError(t, err)

	site := newFakeSite("reuters", "Reuters", 1)
	o := newTestOrchestrator(t, []string{"reuters"}, fakeResolver{"reuters": site}, pub, nil, nil)
	summary := o.Run(context.Background())

	require.Equal(t, 1, summary.TotalFound)
	require.Equal(t, 0, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Zero(t, summary.SuccessRate())
}

func TestRun_ShutdownMidBatchFinishesInFlightArticle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	site := newFakeSite("reuters", "Reuters", 3)
	site.onArticle = func(ctx context.Context, stub crawler.Stub) {
		// Shutdown arrives while the first article is being fetched.
		cancel()
		require.NoError(t, ctx.Err(), "in-flight article must not see the cancellation")
	}
	second := newFakeSite("apnews", "AP", 2)
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	o := newTestOrchestrator(t, []string{"apnews", "reuters"},
		fakeResolver{"reuters": site, "apnews": second}, pub, rec, nil)
	// apnews runs first and completes; shutdown happens during reuters.
	summary := o.Run(ctx)

	require.True(t, summary.Interrupted)
	require.Equal(t, 5, summary.TotalFound)
	require.Equal(t, 3, summary.Succeeded)
	require.Equal(t, 0, summary.Failed)
	require.Equal(t, 2, summary.Skipped())
	require.Equal(t, 1, site.articleCalls())
	require.Equal(t, []string{metrics.RunInterrupted}, rec.runs)
}

func TestRun_ShutdownDuringListFetchKeepsStubs(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	site := newFakeSite("reuters", "Reuters", 2)
	site.onLinks = func(ctx context.Context) {
		cancel()
		require.NoError(t, ctx.Err(), "in-flight list fetch must not see the cancellation")
	}
	later := newFakeSite("zdnet", "ZDNet", 1)

	o := newTestOrchestrator(t, []string{"reuters", "zdnet"},
		fakeResolver{"reuters": site, "zdnet": later}, &fakePublisher{}, nil, nil)
	summary := o.Run(ctx)

	require.True(t, summary.Interrupted)
	require.Equal(t, 2, summary.TotalFound)
	require.Equal(t, 2, summary.Skipped())
	reuters, ok := summary.Site("reuters")
	require.True(t, ok)
	require.Empty(t, reuters.Error)
	require.Zero(t, site.articleCalls())
	_, visited := summary.Site("zdnet")
	require.False(t, visited)
}

func TestRun_PublishServerErrorOnSecondArticle(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"indexing backend down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"document":{"id":"doc"}}`))
	}))
	t.Cleanup(srv.Close)

	pub, err := publisher.New(publisher.Config{APIKey: "k", Endpoint: srv.URL, DatasetID: "ds"}, zap.NewNop())
	require.NoError(t, err)

	site := newFakeSite("reuters", "Reuters", 3)
	rec := &fakeRecorder{}
	o := newTestOrchestrator(t, []string{"reuters"}, fakeResolver{"reuters": site}, pub, rec, nil)
	summary := o.Run(context.Background())

	require.Equal(t, 3, summary.TotalFound)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, map[string]int{
		metrics.OutcomePublished:     2,
		metrics.OutcomePublishFailed: 1,
	}, rec.articleCounts("reuters"))
}

func TestRun_CancelledBeforeStartVisitsNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	site := newFakeSite("reuters", "Reuters", 2)
	o := newTestOrchestrator(t, []string{"reuters"}, fakeResolver{"reuters": site}, &fakePublisher{}, nil, nil)
	summary := o.Run(ctx)

	require.True(t, summary.Interrupted)
	require.Zero(t, summary.TotalFound)
	require.Zero(t, site.articleCalls())
}

func TestRun_NoArticlesFound(t *testing.T) {
	t.Parallel()

	empty := newFakeSite("reuters", "Reuters", 0)
	o := newTestOrchestrator(t, []string{"reuters"}, fakeResolver{"reuters": empty}, &fakePublisher{}, nil, nil)
	summary := o.Run(context.Background())

	require.Zero(t, summary.TotalFound)
	require.Zero(t, summary.SuccessRate())
	require.False(t, summary.Interrupted)
}

func TestRun_ListFailureContinuesWithNextSite(t *testing.T) {
	t.Parallel()

	broken := newFakeSite("apnews", "AP", 0)
	broken.linksErr = fmt.Errorf("fetch list: %w", crawler.ErrStructuralMismatch)
	healthy := newFakeSite("reuters", "Reuters", 2)

	o := newTestOrchestrator(t, []string{"apnews", "reuters"},
		fakeResolver{"apnews": broken, "reuters": healthy}, &fakePublisher{}, nil, nil)
	summary := o.Run(context.Background())

	require.Equal(t, 2, summary.Succeeded)
	site, ok := summary.Site("apnews")
	require.True(t, ok)
	require.Contains(t, site.Error, "structural mismatch")
}

func TestRun_UnknownSiteIsSkipped(t *testing.T) {
	t.Parallel()

	healthy := newFakeSite("reuters", "Reuters", 1)
	o := newTestOrchestrator(t, []string{"bbc", "reuters"}, fakeResolver{"reuters": healthy}, &fakePublisher{}, nil, nil)
	summary := o.Run(context.Background())

	require.Equal(t, 1, summary.TotalFound)
	require.Equal(t, 1, summary.Succeeded)
	skipped, ok := summary.Site("bbc")
	require.True(t, ok)
	require.NotEmpty(t, skipped.Error)
}

func TestRun_DeduplicatesAcrossSites(t *testing.T) {
	t.Parallel()

	first := newFakeSite("apnews", "AP", 2)
	second := newFakeSite("reuters", "Reuters", 0)
	second.stubs = append(second.stubs, first.stubs[0], crawler.Stub{URL: "https://news.example.com/reuters/unique", Title: "Unique"})

	o := newTestOrchestrator(t, []string{"apnews", "reuters"},
		fakeResolver{"apnews": first, "reuters": second}, &fakePublisher{}, nil, nil)
	summary := o.Run(context.Background())

	require.Equal(t, 3, summary.TotalFound)
	require.Equal(t, 3, summary.Succeeded)
	require.Equal(t, 1, second.articleCalls())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Deps{}, nil)
	require.Error(t, err)
}

func TestRunSummary_SuccessRateGuardsZero(t *testing.T) {
	t.Parallel()

	require.Zero(t, RunSummary{}.SuccessRate())
	s := RunSummary{TotalFound: 4, Succeeded: 1, Failed: 1}
	require.InDelta(t, 0.25, s.SuccessRate(), 1e-9)
	require.Equal(t, 2, s.Skipped())
}

func TestRegistryResolver(t *testing.T) {
	t.Parallel()

	r := NewRegistryResolver(sites.Default(), nil, sites.Shared{})
	_, err := r.Crawler("reuters")
	require.ErrorIs(t, err, sites.ErrUnknownSite)
}

func newTestOrchestrator(
	t *testing.T,
	ids []string,
	resolver Resolver,
	pub Publisher,
	rec Recorder,
	hist History,
) *Orchestrator {
	t.Helper()
	deps := Deps{
		Resolver:  resolver,
		Publisher: pub,
		Cleaner:   cleaner.New(nil),
		IDs:       &fakeIDs{},
	}
	if rec != nil {
		deps.Recorder = rec
	}
	if hist != nil {
		deps.History = hist
	}
	o, err := New(ids, deps, zap.NewNop())
	require.NoError(t, err)
	return o
}

type fakeResolver map[string]*fakeSite

func (r fakeResolver) Crawler(id string) (SiteCrawler, error) {
	site, ok := r[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", sites.ErrUnknownSite, id)
	}
	return site, nil
}

type fakeSite struct {
	id        string
	name      string
	stubs     []crawler.Stub
	linksErr  error
	failures  map[string]error
	bodies    map[string]string
	onLinks   func(ctx context.Context)
	onArticle func(ctx context.Context, stub crawler.Stub)

	mu    sync.Mutex
	calls int
}

func newFakeSite(id, name string, n int) *fakeSite {
	s := &fakeSite{
		id:       id,
		name:     name,
		failures: make(map[string]error),
		bodies:   make(map[string]string),
	}
	for i := range n {
		s.stubs = append(s.stubs, crawler.Stub{
			URL:   fmt.Sprintf("https://news.example.com/%s/%d", id, i),
			Title: fmt.Sprintf("Story %d", i),
		})
	}
	return s
}

func (s *fakeSite) Config() crawler.Config {
	return crawler.Config{SiteID: s.id, Name: s.name}
}

func (s *fakeSite) ArticleLinks(ctx context.Context) ([]crawler.Stub, error) {
	if s.onLinks != nil {
		s.onLinks(ctx)
	}
	return append([]crawler.Stub(nil), s.stubs...), s.linksErr
}

func (s *fakeSite) Article(ctx context.Context, stub crawler.Stub) (crawler.Article, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.onArticle != nil {
		s.onArticle(ctx, stub)
	}
	if err := s.failures[stub.URL]; err != nil {
		return crawler.Article{URL: stub.URL, Title: stub.Title}, err
	}
	body, ok := s.bodies[stub.URL]
	if !ok {
		body = "Body of " + stub.Title
	}
	return crawler.Article{URL: stub.URL, Title: stub.Title, Body: body, Date: "2024-03-05"}, nil
}

func (s *fakeSite) articleCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakePublisher struct {
	mu        sync.Mutex
	published []crawler.Article
}

func (p *fakePublisher) Publish(ctx context.Context, article crawler.Article) bool {
	if ctx.Err() != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, article)
	return !strings.Contains(article.Title, "reject")
}

func (p *fakePublisher) articles() []crawler.Article {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]crawler.Article(nil), p.published...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	articles map[string]map[string]int
	runs     []string
}

func (r *fakeRecorder) ObserveArticle(site, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.articles == nil {
		r.articles = make(map[string]map[string]int)
	}
	if r.articles[site] == nil {
		r.articles[site] = make(map[string]int)
	}
	r.articles[site][outcome]++
}

func (r *fakeRecorder) ObserveRun(status string, _ float64, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, status)
}

func (r *fakeRecorder) articleCounts(site string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.articles[site]
}

type fakeHistory struct {
	summaries []RunSummary
}

func (h *fakeHistory) Record(s RunSummary) {
	h.summaries = append(h.summaries, s)
}

type fakeIDs struct {
	n int
}

func (f *fakeIDs) NewID() (string, error) {
	f.n++
	if f.n > 100 {
		return "", errors.New("exhausted")
	}
	return fmt.Sprintf("run-%d", f.n), nil
}
