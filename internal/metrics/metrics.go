// Package metrics exposes Prometheus collectors for the sync service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Article outcomes recorded by the orchestrator.
const (
	OutcomePublished     = "published"
	OutcomeCrawlFailed   = "crawl_failed"
	OutcomePublishFailed = "publish_failed"
)

// Run statuses.
const (
	RunCompleted   = "completed"
	RunInterrupted = "interrupted"
)

var (
	fetchRequestsTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	articlesTotal              *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	lastRunSuccessRate         prometheus.Gauge
	lastRunTimestampSeconds    prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdesk_fetch_requests_total",
				Help: "Total crawl requests, labeled by site, request kind and status code.",
			},
			[]string{"site", "kind", "code"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsdesk_fetch_duration_seconds",
				Help:    "Histogram of crawl request latencies, labeled by site and request kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site", "kind"},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdesk_articles_total",
				Help: "Total articles processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdesk_runs_total",
				Help: "Total sync runs, labeled by status.",
			},
			[]string{"status"},
		)

		lastRunSuccessRate = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsdesk_last_run_success_rate",
				Help: "Fraction of discovered articles published by the most recent run.",
			},
		)

		lastRunTimestampSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsdesk_last_run_timestamp_seconds",
				Help: "Unix time at which the most recent run finished.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one crawl request. A zero status means no response.
func ObserveFetch(site, kind string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	fetchRequestsTotal.WithLabelValues(site, kind, code).Inc()
	fetchDurationSeconds.WithLabelValues(site, kind).Observe(duration.Seconds())
}

// ObserveArticle increments the article counter for the given outcome.
func ObserveArticle(site, outcome string) {
	articlesTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(status string, successRate float64, finished time.Time) {
	runsTotal.WithLabelValues(status).Inc()
	lastRunSuccessRate.Set(successRate)
	lastRunTimestampSeconds.Set(float64(finished.Unix()))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// FetchObserver adapts the package-level collectors to crawler.FetchObserver.
type FetchObserver struct{}

// NewFetchObserver initializes the collectors and returns an observer.
func NewFetchObserver() FetchObserver {
	Init()
	return FetchObserver{}
}

// ObserveFetch implements crawler.FetchObserver.
func (FetchObserver) ObserveFetch(site, kind string, status int, duration time.Duration) {
	ObserveFetch(site, kind, status, duration)
}

// SyncRecorder adapts the package-level collectors to the orchestrator's
// recorder.
type SyncRecorder struct{}

// NewSyncRecorder initializes the collectors and returns a recorder.
func NewSyncRecorder() SyncRecorder {
	Init()
	return SyncRecorder{}
}

// ObserveArticle implements syncer.Recorder.
func (SyncRecorder) ObserveArticle(site, outcome string) {
	ObserveArticle(site, outcome)
}

// ObserveRun implements syncer.Recorder.
func (SyncRecorder) ObserveRun(status string, successRate float64, finished time.Time) {
	ObserveRun(status, successRate, finished)
}
