package sites

import (
	"fmt"

	"github.com/JakeFAU/newsdesk-sync/internal/config"
	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
	"github.com/JakeFAU/newsdesk-sync/internal/parser"
	"github.com/JakeFAU/newsdesk-sync/internal/session"
)

// buildStandard assembles a selector-driven crawler with its own session
// pool. blockMarkers is used unless the site config overrides it.
func buildStandard(id ID, site config.SiteConfig, shared Shared, blockMarkers []string) (*crawler.SiteCrawler, error) {
	root := site.RootURL
	if root == "" {
		derived, err := crawler.RootURL(site.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("derive root url: %w", err)
		}
		root = derived
	}

	logger := shared.Logger.Named(string(id))

	pool, err := session.New(session.Config{
		Size:           shared.SessionPoolSize,
		CookiesEnabled: site.Cookies(),
		Proxies:        site.ProxyList,
	})
	if err != nil {
		return nil, fmt.Errorf("create session pool: %w", err)
	}

	if len(site.BlockMarkers) > 0 {
		blockMarkers = site.BlockMarkers
	}
	siteParser, err := parser.New(parser.NewGoqueryEngine(), site.Parser, root, logger,
		parser.WithBlockMarkers(blockMarkers))
	if err != nil {
		return nil, fmt.Errorf("create parser: %w", err)
	}

	name := site.Name
	if name == "" {
		name = string(id)
	}
	return crawler.New(crawler.Config{
		SiteID:       string(id),
		Name:         name,
		BaseURL:      site.BaseURL,
		RootURL:      root,
		RequestDelay: site.Delay(),
	}, crawler.Deps{
		Fetcher:   shared.Fetcher,
		Parser:    siteParser,
		Sessions:  pool,
		Artifacts: shared.Artifacts,
		Retry:     crawler.NewExponentialRetryPolicy(site.Retries()),
		Pauser:    shared.Pauser,
		Observer:  shared.Observer,
	}, logger)
}
