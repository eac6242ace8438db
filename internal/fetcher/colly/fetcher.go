// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
)

// DefaultTimeout bounds a single request when none is configured.
const DefaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher implements crawler.Fetcher using one short-lived Colly collector
// per request, so each request carries exactly its identity's cookie jar,
// proxy and headers.
type Fetcher struct {
	cfg Config

	mu         sync.Mutex
	transports map[string]*http.Transport
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Fetcher{
		cfg:        cfg,
		transports: make(map[string]*http.Transport),
	}
}

// Fetch executes a single HTTP GET using Colly. Non-2xx responses are returned
// with their status code rather than as errors.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector, err := f.buildCollector(request)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	f.configureCollectorHooks(collector, request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return result, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(request crawler.FetchRequest) (*colly.Collector, error) {
	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = true
	if f.cfg.MaxBodySize > 0 {
		collector.MaxBodySize = f.cfg.MaxBodySize
	}

	proxy := ""
	if request.Identity != nil {
		proxy = request.Identity.Proxy()
	}
	transport, err := f.transportFor(proxy)
	if err != nil {
		return nil, err
	}
	collector.WithTransport(transport)
	collector.SetRequestTimeout(f.cfg.Timeout)

	if request.Identity != nil && request.Identity.Jar() != nil {
		collector.SetCookieJar(request.Identity.Jar())
	} else {
		collector.DisableCookies()
	}
	if ua := request.Headers.Get("User-Agent"); ua != "" {
		collector.UserAgent = ua
	}
	return collector, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result.StatusCode = r.StatusCode
			result.Body = append([]byte(nil), r.Body...)
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The visit keeps writing through the hook pointers until it returns.
		<-done
		return fmt.Errorf("%w: colly fetch canceled: %w", crawler.ErrTransport, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: colly visit failed: %w", crawler.ErrTransport, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("%w: colly response failed: %w", crawler.ErrTransport, *fetchErr)
		}
		return nil
	}
}

// copyHeaders replaces Colly's defaults with the identity's header set.
func (f *Fetcher) copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func (f *Fetcher) transportFor(proxy string) (*http.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transports[proxy]; ok {
		return t, nil
	}
	t := newHTTPTransport()
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		t.Proxy = http.ProxyURL(proxyURL)
	}
	f.transports[proxy] = t
	return t, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
