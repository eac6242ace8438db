// Package memory records published articles in memory. The sync command uses
// it for dry runs; tests use it to inspect what would have been uploaded.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
	"github.com/JakeFAU/newsdesk-sync/internal/publisher"
)

// Publisher stores published documents for inspection.
type Publisher struct {
	mu        sync.RWMutex
	documents []Document
	reject    func(crawler.Article) bool
	now       func() time.Time
}

// Document captures one publish call as it would have been sent.
type Document struct {
	Name    string
	Content string
	Article crawler.Article
}

// Option customises a memory Publisher.
type Option func(*Publisher)

// WithRejecter makes Publish report failure for articles matching fn.
func WithRejecter(fn func(crawler.Article) bool) Option {
	return func(p *Publisher) {
		p.reject = fn
	}
}

// New returns a memory Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish records the rendered document and reports success unless a
// rejecter matches.
func (p *Publisher) Publish(_ context.Context, article crawler.Article) bool {
	if p.reject != nil && p.reject(article) {
		return false
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.documents = append(p.documents, Document{
		Name:    publisher.DocumentName(article.Title, now),
		Content: publisher.Content(article, now),
		Article: article,
	})
	return true
}

// Documents returns the recorded publishes.
func (p *Publisher) Documents() []Document {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Document, len(p.documents))
	copy(out, p.documents)
	return out
}
