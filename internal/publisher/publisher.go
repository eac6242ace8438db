// Package publisher uploads cleaned articles to the downstream knowledge-base
// dataset API as text documents.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/newsdesk-sync/internal/clock/system"
	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
)

const (
	// DefaultIndexingTechnique is the dataset indexing mode requested per document.
	DefaultIndexingTechnique = "high_quality"
	// DefaultMaxTokens is the segment size for paragraph segmentation.
	DefaultMaxTokens = 500
	// DefaultUploader tags documents created by this tool.
	DefaultUploader = "reuters_sync"
	// DefaultCategory is the metadata category stamped on each document.
	DefaultCategory = "reuters_news"
	// DefaultTimeout bounds one upload request.
	DefaultTimeout = 30 * time.Second

	maxNameRunes     = 100
	untitledLayout   = "20060102_150405_untitled"
	publishedLayout  = "2006-01-02"
	maxLoggedBody    = 4 << 10
	segmentSeparator = "\n\n"
)

var nameReplacer = strings.NewReplacer(
	"/", "-",
	`\`, "-",
	":", "",
	"*", "",
	"?", "",
	`"`, "",
	"<", "",
	">", "",
	"|", "",
)

// Config describes the dataset endpoint and document settings.
type Config struct {
	APIKey            string
	Endpoint          string
	DatasetID         string
	IndexingTechnique string
	MaxTokens         int
	Uploader          string
	Category          string
	Timeout           time.Duration
	// PublishRPS paces uploads client-side; zero disables pacing.
	PublishRPS float64
}

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithClient swaps the HTTP client.
func WithClient(client Doer) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithClock swaps the clock used for names and metadata timestamps.
func WithClock(clock Clock) Option {
	return func(p *Publisher) {
		p.clock = clock
	}
}

// Publisher creates one dataset document per article.
type Publisher struct {
	cfg     Config
	url     string
	client  Doer
	clock   Clock
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New validates cfg and builds a Publisher.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Publisher, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("publisher: endpoint is required")
	}
	if cfg.DatasetID == "" {
		return nil, errors.New("publisher: dataset id is required")
	}
	if cfg.IndexingTechnique == "" {
		cfg.IndexingTechnique = DefaultIndexingTechnique
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Uploader == "" {
		cfg.Uploader = DefaultUploader
	}
	if cfg.Category == "" {
		cfg.Category = DefaultCategory
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Publisher{
		cfg:    cfg,
		url:    fmt.Sprintf("%s/v1/datasets/%s/document/create_by_text", strings.TrimRight(cfg.Endpoint, "/"), cfg.DatasetID),
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  system.New(),
		logger: logger,
	}
	if cfg.PublishRPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.PublishRPS), 1)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish uploads article and reports whether the dataset accepted it.
func (p *Publisher) Publish(ctx context.Context, article crawler.Article) bool {
	docID, err := p.Send(ctx, article)
	if err != nil {
		p.logger.Error("failed to publish article",
			zap.String("url", article.URL),
			zap.String("title", article.Title),
			zap.Error(err),
		)
		return false
	}
	p.logger.Info("published article",
		zap.String("title", article.Title),
		zap.String("document_id", docID),
	)
	return true
}

// Send uploads article and returns the created document id, if the response
// carried one. Failures wrap crawler.ErrPublishFailure.
func (p *Publisher) Send(ctx context.Context, article crawler.Article) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: wait for publish slot: %w", crawler.ErrPublishFailure, err)
		}
	}

	now := p.clock.Now()
	payload := p.buildPayload(article, now)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal payload: %w", crawler.ErrPublishFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", crawler.ErrPublishFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: post document: %w", crawler.ErrPublishFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		p.logger.Error("dataset rejected document",
			zap.Int("status", resp.StatusCode),
			zap.String("document_name", payload.Name),
			zap.ByteString("response", respBody),
		)
		return "", fmt.Errorf("%w: status %d", crawler.ErrPublishFailure, resp.StatusCode)
	}
	if readErr != nil {
		return "", nil
	}

	var created createResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", nil
	}
	return created.Document.ID, nil
}

func (p *Publisher) buildPayload(article crawler.Article, now time.Time) createRequest {
	name := DocumentName(article.Title, now)
	published := article.Date
	if published == "" {
		published = now.Format(publishedLayout)
	}
	stamp := now.Format(time.RFC3339)
	return createRequest{
		Name:              name,
		Text:              Content(article, now),
		IndexingTechnique: p.cfg.IndexingTechnique,
		ProcessRule: processRule{
			Mode: "custom",
			Rules: rules{
				PreProcessingRules: []preProcessingRule{},
				Segmentation: segmentation{
					Type:      "paragraph",
					Separator: segmentSeparator,
					MaxTokens: p.cfg.MaxTokens,
				},
			},
		},
		Metadata: metadata{
			Source:         article.URL,
			DocumentName:   name,
			Uploader:       p.cfg.Uploader,
			UploadDate:     stamp,
			LastUpdateDate: stamp,
			Category:       p.cfg.Category,
			PublishedDate:  published,
		},
	}
}

// DocumentName derives a filesystem-safe document name from title.
func DocumentName(title string, now time.Time) string {
	name := strings.TrimSpace(nameReplacer.Replace(title))
	if name == "" {
		return now.Format(untitledLayout)
	}
	if runes := []rune(name); len(runes) > maxNameRunes {
		return string(runes[:maxNameRunes-3]) + "..."
	}
	return name
}

// Content renders the document text. The blank-line separators line up with
// the paragraph segmentation rule.
func Content(article crawler.Article, now time.Time) string {
	published := article.Date
	if published == "" {
		published = now.Format(publishedLayout)
	}
	sections := []string{
		"# " + article.Title,
		"Source URL: " + article.URL,
		"Published Date: " + published,
		"## Content",
		article.Body,
	}
	return strings.Join(sections, segmentSeparator)
}

type createRequest struct {
	Name              string      `json:"name"`
	Text              string      `json:"text"`
	IndexingTechnique string      `json:"indexing_technique"`
	ProcessRule       processRule `json:"process_rule"`
	Metadata          metadata    `json:"metadata"`
}

type processRule struct {
	Mode  string `json:"mode"`
	Rules rules  `json:"rules"`
}

type rules struct {
	PreProcessingRules []preProcessingRule `json:"pre_processing_rules"`
	Segmentation       segmentation        `json:"segmentation"`
}

type preProcessingRule struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

type segmentation struct {
	Type      string `json:"type"`
	Separator string `json:"separator"`
	MaxTokens int    `json:"max_tokens"`
}

type metadata struct {
	Source         string `json:"source"`
	DocumentName   string `json:"document_name"`
	Uploader       string `json:"uploader"`
	UploadDate     string `json:"upload_date"`
	LastUpdateDate string `json:"last_update_date"`
	Category       string `json:"category"`
	PublishedDate  string `json:"published_date"`
}

type createResponse struct {
	Document struct {
		ID string `json:"id"`
	} `json:"document"`
}
