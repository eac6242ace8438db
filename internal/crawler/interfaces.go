package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/newsdesk-sync/internal/session"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Parser turns raw markup into stubs and articles.
type Parser interface {
	ExtractLinks(markup []byte) ([]Stub, error)
	ExtractArticle(markup []byte, url string) (Article, error)
}

// Sessions hands out client identities.
type Sessions interface {
	Primary() *session.Identity
	Acquire() *session.Identity
	RefreshPrimary()
	RandomUserAgent() string
}

// ArtifactStore persists diagnostic artifacts and returns their location.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// RetryPolicy decides whether and when a failed request is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Pauser sleeps between requests.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// FetchObserver receives one callback per completed HTTP attempt.
type FetchObserver interface {
	ObserveFetch(site, kind string, status int, duration time.Duration)
}
