package crawler

import (
	"net/http"
	"time"

	"github.com/JakeFAU/newsdesk-sync/internal/session"
)

// Stub is an article link discovered on a listing page that has not been
// fetched yet.
type Stub struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Article is the fully parsed content of one news article.
type Article struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Date   string `json:"date"`
	Source string `json:"source"`
}

// FetchRequest captures everything needed to fetch a URL under one identity.
type FetchRequest struct {
	URL      string
	Headers  http.Header
	Identity *session.Identity
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response carries a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}
