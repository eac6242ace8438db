// Package parser extracts article links and article content from raw markup
// using a configuration-driven selector schema.
package parser

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/clock/system"
	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
)

// DateLayout is the format used when the publish date falls back to "now".
const DateLayout = "2006-01-02"

// dateAttributes are tried in order before falling back to element text.
var dateAttributes = []string{"datetime", "data-date", "content"}

// DefaultBlockMarkers identify captcha, robot-check and error pages.
var DefaultBlockMarkers = []string{"div.captcha", "div.robot-check", "div.error-page"}

// Schema is the per-site selector configuration.
type Schema struct {
	ArticleSelector string `mapstructure:"article_selector" yaml:"article_selector"`
	TitleSelector   string `mapstructure:"title_selector" yaml:"title_selector"`
	BodySelector    string `mapstructure:"body_selector" yaml:"body_selector"`
	DateSelector    string `mapstructure:"date_selector" yaml:"date_selector"`
}

// Validate reports the first missing selector.
func (s Schema) Validate() error {
	switch {
	case strings.TrimSpace(s.ArticleSelector) == "":
		return fmt.Errorf("parser.article_selector must be set")
	case strings.TrimSpace(s.TitleSelector) == "":
		return fmt.Errorf("parser.title_selector must be set")
	case strings.TrimSpace(s.BodySelector) == "":
		return fmt.Errorf("parser.body_selector must be set")
	}
	return nil
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Option customises a SiteParser.
type Option func(*SiteParser)

// WithBlockMarkers replaces the bot-detection selectors.
func WithBlockMarkers(markers []string) Option {
	return func(p *SiteParser) {
		p.blockMarkers = markers
	}
}

// WithClock swaps the clock used for the date fallback.
func WithClock(clock Clock) Option {
	return func(p *SiteParser) {
		p.clock = clock
	}
}

// SiteParser applies a Schema to listing and article pages.
type SiteParser struct {
	engine       Engine
	schema       Schema
	root         *url.URL
	blockMarkers []string
	clock        Clock
	logger       *zap.Logger
}

// New builds a SiteParser. rootURL is used to resolve relative links.
func New(engine Engine, schema Schema, rootURL string, logger *zap.Logger, opts ...Option) (*SiteParser, error) {
	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("parse root url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &SiteParser{
		engine:       engine,
		schema:       schema,
		root:         root,
		blockMarkers: DefaultBlockMarkers,
		clock:        system.New(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ExtractLinks returns one stub per listing element that carries a link.
// A selector that matches nothing yields ErrStructuralMismatch; matches with
// no usable links yield an empty slice and no error.
func (p *SiteParser) ExtractLinks(markup []byte) ([]crawler.Stub, error) {
	doc, err := p.engine.Parse(markup)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrParseFailure, err)
	}
	items := doc.SelectAll(p.schema.ArticleSelector)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: selector %q matched no elements", crawler.ErrStructuralMismatch, p.schema.ArticleSelector)
	}

	stubs := make([]crawler.Stub, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		link, ok := item.SelectFirst("a[href]")
		if !ok {
			continue
		}
		href, _ := link.Attr("href")
		resolved, err := crawler.ResolveLink(p.root, href)
		if err != nil {
			p.logger.Debug("skipping link", zap.String("href", href), zap.Error(err))
			continue
		}
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		stubs = append(stubs, crawler.Stub{
			URL:   resolved,
			Title: strings.TrimSpace(link.Text()),
		})
	}
	return stubs, nil
}

// ExtractArticle parses one article page. On ErrParseFailure the returned
// article carries whatever fields could be extracted.
func (p *SiteParser) ExtractArticle(markup []byte, articleURL string) (crawler.Article, error) {
	article := crawler.Article{URL: articleURL}
	doc, err := p.engine.Parse(markup)
	if err != nil {
		return article, fmt.Errorf("%w: %w", crawler.ErrParseFailure, err)
	}

	for _, marker := range p.blockMarkers {
		if _, blocked := doc.SelectFirst(marker); blocked {
			return article, fmt.Errorf("%w: %s matched %q", crawler.ErrBotDetected, articleURL, marker)
		}
	}

	if title, ok := doc.SelectFirst(p.schema.TitleSelector); ok {
		article.Title = strings.TrimSpace(title.Text())
	}
	article.Date = p.extractDate(doc, articleURL)

	body, ok := doc.SelectFirst(p.schema.BodySelector)
	if !ok {
		return article, fmt.Errorf("%w: body selector %q matched nothing on %s",
			crawler.ErrParseFailure, p.schema.BodySelector, articleURL)
	}
	article.Body = strings.TrimSpace(body.Text())
	if article.Body == "" {
		return article, fmt.Errorf("%w: empty body on %s", crawler.ErrParseFailure, articleURL)
	}
	return article, nil
}

func (p *SiteParser) extractDate(doc Selection, articleURL string) string {
	if p.schema.DateSelector != "" {
		if el, ok := doc.SelectFirst(p.schema.DateSelector); ok {
			for _, attr := range dateAttributes {
				if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
			}
			if text := strings.TrimSpace(el.Text()); text != "" {
				return text
			}
		}
	}
	p.logger.Warn("no publish date found, using current date", zap.String("url", articleURL))
	return p.clock.Now().Format(DateLayout)
}
