package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/session"
)

const (
	testRoot = "https://news.example.com/"
	testList = "https://news.example.com/world/"
)

func TestSiteCrawler_ArticleLinks_Success(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.respond(testList, http.StatusOK, "list")
	parser := &fakeParser{stubs: []Stub{{URL: testRoot + "a", Title: "A"}}}
	pauser := &recordingPauser{}

	c := newTestCrawler(t, fetcher, parser, pauser, nil, 0)
	stubs, err := c.ArticleLinks(context.Background())
	require.NoError(t, err)
	require.Equal(t, parser.stubs, stubs)

	calls := fetcher.calls()
	require.Len(t, calls, 2)
	require.Equal(t, testRoot, calls[0].URL)
	require.Equal(t, testList, calls[1].URL)
	require.Equal(t, testRoot, calls[1].Headers.Get("Referer"))
	require.NotEmpty(t, calls[1].Headers.Get("User-Agent"))
	require.Equal(t, 0, calls[1].Identity.ID(), "list fetch uses the primary identity")

	delays := pauser.all()
	require.Len(t, delays, 1)
	require.GreaterOrEqual(t, delays[0], DefaultListWarmup.Min)
	require.LessOrEqual(t, delays[0], DefaultListWarmup.Max)
}

func TestSiteCrawler_ArticleLinks_WarmupFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.fail(testRoot, errors.New("dial tcp: refused"))
	fetcher.respond(testList, http.StatusOK, "list")
	parser := &fakeParser{stubs: []Stub{{URL: testRoot + "a"}}}

	c := newTestCrawler(t, fetcher, parser, &recordingPauser{}, nil, 0)
	stubs, err := c.ArticleLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, stubs, 1)
}

func TestSiteCrawler_ArticleLinks_StatusAbortsSite(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.respond(testList, http.StatusForbidden, "denied")

	c := newTestCrawler(t, fetcher, &fakeParser{}, &recordingPauser{}, nil, 3)
	stubs, err := c.ArticleLinks(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.Nil(t, stubs)
	require.Equal(t, 1, fetcher.count(testList), "4xx other than 429 is not retried")
}

func TestSiteCrawler_ArticleLinks_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.respondSequence(testList,
		fakeResult{status: http.StatusServiceUnavailable},
		fakeResult{err: errors.New("connection reset")},
		fakeResult{status: http.StatusOK, body: "list"},
	)
	parser := &fakeParser{stubs: []Stub{{URL: testRoot + "a"}}}
	pauser := &recordingPauser{}

	c := newTestCrawler(t, fetcher, parser, pauser, nil, 2)
	stubs, err := c.ArticleLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, stubs, 1)
	require.Equal(t, 3, fetcher.count(testList))
	require.Len(t, pauser.all(), 3, "warmup pause plus two backoffs")
}

func TestSiteCrawler_ArticleLinks_RetriesExhausted(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.fail(testList, errors.New("timeout"))

	c := newTestCrawler(t, fetcher, &fakeParser{}, &recordingPauser{}, nil, 1)
	_, err := c.ArticleLinks(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	require.Equal(t, 2, fetcher.count(testList))
}

func TestSiteCrawler_ArticleLinks_StructuralMismatchSavesMarkup(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.respond(testList, http.StatusOK, "<html>redesigned</html>")
	parser := &fakeParser{linksErr: fmt.Errorf("%w: nothing", ErrStructuralMismatch)}
	artifacts := &fakeArtifacts{}

	c := newTestCrawler(t, fetcher, parser, &recordingPauser{}, artifacts, 0)
	stubs, err := c.ArticleLinks(context.Background())
	require.ErrorIs(t, err, ErrStructuralMismatch)
	require.NotNil(t, stubs)
	require.Empty(t, stubs)
	require.Equal(t, "testsite/"+DiagnosticsFile, artifacts.path)
	require.Equal(t, "<html>redesigned</html>", string(artifacts.data))
}

func TestSiteCrawler_Article_Success(t *testing.T) {
	t.Parallel()

	articleURL := testRoot + "world/story"
	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.respond(articleURL, http.StatusOK, "article")
	parser := &fakeParser{article: Article{Body: "body", Date: "2024-01-01"}}
	pauser := &recordingPauser{}

	c := newTestCrawler(t, fetcher, parser, pauser, nil, 0)
	article, err := c.Article(context.Background(), Stub{URL: articleURL, Title: "Listing title"})
	require.NoError(t, err)
	require.Equal(t, articleURL, article.URL)
	require.Equal(t, "Listing title", article.Title, "empty parsed title falls back to the stub title")

	calls := fetcher.calls()
	require.Len(t, calls, 2)
	require.Equal(t, testRoot, calls[0].URL, "article fetch is preceded by a root visit")
	require.Equal(t, testRoot, calls[1].Headers.Get("Referer"))
	require.NotEmpty(t, calls[1].Headers.Get("User-Agent"))
	require.Equal(t, calls[0].Identity, calls[1].Identity)

	delays := pauser.all()
	require.Len(t, delays, 2)
	require.GreaterOrEqual(t, delays[0], 5*time.Second)
	require.Less(t, delays[0], 15*time.Second)
	require.GreaterOrEqual(t, delays[1], DefaultDetailWarmup.Min)
	require.LessOrEqual(t, delays[1], DefaultDetailWarmup.Max)
}

func TestSiteCrawler_Article_RotatesIdentities(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	for i := 0; i < 4; i++ {
		fetcher.respond(fmt.Sprintf("%sa%d", testRoot, i), http.StatusOK, "article")
	}
	parser := &fakeParser{article: Article{Title: "T", Body: "B"}}

	c := newTestCrawler(t, fetcher, parser, &recordingPauser{}, nil, 0)
	var ids []int
	for i := 0; i < 4; i++ {
		url := fmt.Sprintf("%sa%d", testRoot, i)
		_, err := c.Article(context.Background(), Stub{URL: url})
		require.NoError(t, err)
		calls := fetcher.calls()
		ids = append(ids, calls[len(calls)-1].Identity.ID())
	}
	require.Equal(t, []int{1, 2, 3, 1}, ids)
}

func TestSiteCrawler_Article_ParseErrorsPropagate(t *testing.T) {
	t.Parallel()

	articleURL := testRoot + "blocked"
	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.respond(articleURL, http.StatusOK, "captcha")
	parser := &fakeParser{articleErr: fmt.Errorf("%w: captcha", ErrBotDetected)}

	c := newTestCrawler(t, fetcher, parser, &recordingPauser{}, nil, 0)
	_, err := c.Article(context.Background(), Stub{URL: articleURL})
	require.ErrorIs(t, err, ErrBotDetected)
}

func TestSiteCrawler_Article_TransportError(t *testing.T) {
	t.Parallel()

	articleURL := testRoot + "gone"
	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.fail(articleURL, errors.New("EOF"))

	c := newTestCrawler(t, fetcher, &fakeParser{}, &recordingPauser{}, nil, 0)
	article, err := c.Article(context.Background(), Stub{URL: articleURL, Title: "Gone"})
	require.ErrorIs(t, err, ErrTransport)
	require.Equal(t, "Gone", article.Title)
}

func TestSiteCrawler_ObservesFetches(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.respond(testRoot, http.StatusOK, "home")
	fetcher.respond(testList, http.StatusOK, "list")
	observer := &fakeObserver{}

	pool, err := session.New(session.Config{Size: 3, CookiesEnabled: true})
	require.NoError(t, err)
	c, err := New(Config{SiteID: "testsite", BaseURL: testList}, Deps{
		Fetcher:  fetcher,
		Parser:   &fakeParser{stubs: []Stub{{URL: testRoot + "a"}}},
		Sessions: pool,
		Pauser:   &recordingPauser{},
		Observer: observer,
	}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, testRoot, c.Config().RootURL)

	_, err = c.ArticleLinks(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"warmup:200", "list:200"}, observer.events)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: testList}, Deps{}, nil)
	require.Error(t, err)
}

func newTestCrawler(
	t *testing.T,
	fetcher Fetcher,
	parser Parser,
	pauser Pauser,
	artifacts ArtifactStore,
	maxRetries int,
) *SiteCrawler {
	t.Helper()
	pool, err := session.New(session.Config{Size: 3, CookiesEnabled: true})
	require.NoError(t, err)
	deps := Deps{
		Fetcher:  fetcher,
		Parser:   parser,
		Sessions: pool,
		Retry:    NewExponentialRetryPolicy(maxRetries),
		Pauser:   pauser,
	}
	if artifacts != nil {
		deps.Artifacts = artifacts
	}
	c, err := New(Config{
		SiteID:       "testsite",
		Name:         "Test Site",
		BaseURL:      testList,
		RootURL:      testRoot,
		RequestDelay: 10 * time.Second,
	}, deps, zap.NewNop())
	require.NoError(t, err)
	return c
}

type fakeResult struct {
	status int
	body   string
	err    error
}

type fakeFetcher struct {
	mu       sync.Mutex
	results  map[string][]fakeResult
	requests []FetchRequest
	perURL   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string][]fakeResult),
		perURL:  make(map[string]int),
	}
}

func (f *fakeFetcher) respond(url string, status int, body string) {
	f.results[url] = []fakeResult{{status: status, body: body}}
}

func (f *fakeFetcher) respondSequence(url string, results ...fakeResult) {
	f.results[url] = results
}

func (f *fakeFetcher) fail(url string, err error) {
	f.results[url] = []fakeResult{{err: err}}
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	n := f.perURL[req.URL]
	f.perURL[req.URL]++
	seq, ok := f.results[req.URL]
	if !ok {
		return FetchResponse{}, fmt.Errorf("no fake response for %s", req.URL)
	}
	if n >= len(seq) {
		n = len(seq) - 1
	}
	res := seq[n]
	if res.err != nil {
		return FetchResponse{}, res.err
	}
	return FetchResponse{URL: req.URL, StatusCode: res.status, Body: []byte(res.body)}, nil
}

func (f *fakeFetcher) calls() []FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchRequest(nil), f.requests...)
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perURL[url]
}

type fakeParser struct {
	stubs      []Stub
	linksErr   error
	article    Article
	articleErr error
}

func (p *fakeParser) ExtractLinks([]byte) ([]Stub, error) {
	return p.stubs, p.linksErr
}

func (p *fakeParser) ExtractArticle(_ []byte, url string) (Article, error) {
	a := p.article
	a.URL = url
	return a, p.articleErr
}

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d > 0 {
		p.delays = append(p.delays, d)
	}
}

func (p *recordingPauser) all() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

type fakeArtifacts struct {
	path string
	data []byte
}

func (a *fakeArtifacts) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	a.path = path
	a.data = append([]byte(nil), data...)
	return "file:///tmp/" + path, nil
}

type fakeObserver struct {
	events []string
}

func (o *fakeObserver) ObserveFetch(_ string, kind string, status int, _ time.Duration) {
	o.events = append(o.events, fmt.Sprintf("%s:%d", kind, status))
}
