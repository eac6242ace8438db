// Package config loads and validates sync configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/newsdesk-sync/internal/parser"
)

// Per-site defaults applied when a key is absent.
const (
	DefaultRequestDelaySeconds = 5.0
	DefaultMaxRetries          = 3
	DefaultCookiesEnabled      = true
)

// EnvPrefix namespaces environment overrides, e.g. NEWSSYNC_INDEXER_API_KEY.
const EnvPrefix = "NEWSSYNC"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Sites       map[string]SiteConfig `mapstructure:"sites"`
	Indexer     IndexerConfig         `mapstructure:"indexer"`
	HTTP        HTTPConfig            `mapstructure:"http"`
	Schedule    ScheduleConfig        `mapstructure:"schedule"`
	Diagnostics DiagnosticsConfig     `mapstructure:"diagnostics"`
	Logging     LoggingConfig         `mapstructure:"logging"`
	Server      ServerConfig          `mapstructure:"server"`
	History     HistoryConfig         `mapstructure:"history"`
}

// SiteConfig describes one news source. Pointer fields distinguish an
// explicit zero from an absent key.
type SiteConfig struct {
	Name           string        `mapstructure:"name"`
	BaseURL        string        `mapstructure:"base_url"`
	RootURL        string        `mapstructure:"root_url"`
	Parser         parser.Schema `mapstructure:"parser"`
	BlockMarkers   []string      `mapstructure:"block_markers"`
	RequestDelay   *float64      `mapstructure:"request_delay"`
	MaxRetries     *int          `mapstructure:"max_retries"`
	CookiesEnabled *bool         `mapstructure:"cookies_enabled"`
	ProxyList      []string      `mapstructure:"proxy_list"`
}

// Delay returns the base pause between article requests.
func (s SiteConfig) Delay() time.Duration {
	seconds := DefaultRequestDelaySeconds
	if s.RequestDelay != nil {
		seconds = *s.RequestDelay
	}
	return time.Duration(seconds * float64(time.Second))
}

// Retries returns the number of retries after a failed request.
func (s SiteConfig) Retries() int {
	if s.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *s.MaxRetries
}

// Cookies reports whether identities keep a cookie jar.
func (s SiteConfig) Cookies() bool {
	if s.CookiesEnabled == nil {
		return DefaultCookiesEnabled
	}
	return *s.CookiesEnabled
}

// IndexerConfig points at the knowledge-base dataset API.
type IndexerConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	APIEndpoint       string        `mapstructure:"api_endpoint"`
	DatasetID         string        `mapstructure:"dataset_id"`
	IndexingTechnique string        `mapstructure:"indexing_technique"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Uploader          string        `mapstructure:"uploader"`
	Category          string        `mapstructure:"category"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PublishRPS        float64       `mapstructure:"publish_rps"`
}

// Validate enforces the fields needed to publish.
func (c IndexerConfig) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("indexer.api_key must be set")
	case c.APIEndpoint == "":
		return fmt.Errorf("indexer.api_endpoint must be set")
	case c.DatasetID == "":
		return fmt.Errorf("indexer.dataset_id must be set")
	case c.MaxTokens <= 0:
		return fmt.Errorf("indexer.max_tokens must be > 0")
	case c.PublishRPS < 0:
		return fmt.Errorf("indexer.publish_rps must be >= 0")
	}
	if _, err := url.ParseRequestURI(c.APIEndpoint); err != nil {
		return fmt.Errorf("indexer.api_endpoint: %w", err)
	}
	return nil
}

// HTTPConfig configures the crawl client.
type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	SessionPoolSize int           `mapstructure:"session_pool_size"`
}

// ScheduleConfig controls the recurring sync.
type ScheduleConfig struct {
	Cron         string        `mapstructure:"cron"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Diagnostics artifact backends.
const (
	DiagnosticsLocal = "local"
	DiagnosticsGCS   = "gcs"
)

// DiagnosticsConfig sets where debug artifacts are written. The local
// provider writes under Dir; gcs uploads to GCS.Bucket.
type DiagnosticsConfig struct {
	Provider string         `mapstructure:"provider"`
	Dir      string         `mapstructure:"dir"`
	GCS      GCSDiagnostics `mapstructure:"gcs"`
}

// GCSDiagnostics names the bucket for the gcs provider.
type GCSDiagnostics struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// HistoryConfig enables the Postgres run archive. An empty DSN keeps run
// history in memory only.
type HistoryConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	Preload  int    `mapstructure:"preload"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("indexer.api_key", "")
	v.SetDefault("indexer.api_endpoint", "")
	v.SetDefault("indexer.dataset_id", "")
	v.SetDefault("indexer.indexing_technique", "high_quality")
	v.SetDefault("indexer.max_tokens", 500)
	v.SetDefault("indexer.uploader", "reuters_sync")
	v.SetDefault("indexer.category", "reuters_news")
	v.SetDefault("indexer.timeout", 30*time.Second)
	v.SetDefault("indexer.publish_rps", 0)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.session_pool_size", 3)
	v.SetDefault("schedule.cron", "0 * * * *")
	v.SetDefault("schedule.poll_interval", time.Minute)
	v.SetDefault("diagnostics.provider", DiagnosticsLocal)
	v.SetDefault("diagnostics.dir", "diagnostics")
	v.SetDefault("diagnostics.gcs.bucket", "")
	v.SetDefault("diagnostics.gcs.prefix", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.addr", "")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.table", "sync_runs")
	v.SetDefault("history.max_conns", 4)
	v.SetDefault("history.preload", 100)
}

// Validate enforces required values and reasonable limits. Indexer settings
// are checked separately so dry runs work without credentials.
func (c Config) Validate() error {
	if len(c.Sites) == 0 {
		return errors.New("at least one entry under sites is required")
	}
	for _, id := range c.SiteIDs() {
		if err := c.Sites[id].validate(); err != nil {
			return fmt.Errorf("sites.%s: %w", id, err)
		}
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.SessionPoolSize <= 0 {
		return fmt.Errorf("http.session_pool_size must be > 0")
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	if c.Schedule.PollInterval <= 0 {
		return fmt.Errorf("schedule.poll_interval must be > 0")
	}
	switch c.Diagnostics.Provider {
	case "", DiagnosticsLocal:
		if c.Diagnostics.Dir == "" {
			return fmt.Errorf("diagnostics.dir must be set")
		}
	case DiagnosticsGCS:
		if c.Diagnostics.GCS.Bucket == "" {
			return fmt.Errorf("diagnostics.gcs.bucket must be set when diagnostics.provider is gcs")
		}
	default:
		return fmt.Errorf("diagnostics.provider must be %q or %q, got %q",
			DiagnosticsLocal, DiagnosticsGCS, c.Diagnostics.Provider)
	}
	if c.History.Preload < 0 {
		return fmt.Errorf("history.preload must be >= 0")
	}
	return nil
}

func (s SiteConfig) validate() error {
	base, err := url.Parse(s.BaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", s.BaseURL)
	}
	if s.RootURL != "" {
		root, err := url.Parse(s.RootURL)
		if err != nil || root.Host == "" {
			return fmt.Errorf("root_url must be an absolute URL, got %q", s.RootURL)
		}
	}
	if err := s.Parser.Validate(); err != nil {
		return err
	}
	if s.Delay() < 0 {
		return fmt.Errorf("request_delay must be >= 0")
	}
	if s.Retries() < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	for _, p := range s.ProxyList {
		if _, err := url.Parse(p); err != nil {
			return fmt.Errorf("proxy_list: %w", err)
		}
	}
	return nil
}

// SiteIDs returns the configured site ids in processing order.
func (c Config) SiteIDs() []string {
	ids := make([]string, 0, len(c.Sites))
	for id := range c.Sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
