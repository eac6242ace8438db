package syncer

import (
	"fmt"
	"sync"

	"github.com/JakeFAU/newsdesk-sync/internal/config"
	"github.com/JakeFAU/newsdesk-sync/internal/sites"
)

// RegistryResolver builds crawlers from the site registry on first use and
// reuses them across runs, so session pools survive between runs.
type RegistryResolver struct {
	registry *sites.Registry
	configs  map[string]config.SiteConfig
	shared   sites.Shared

	mu    sync.Mutex
	built map[string]SiteCrawler
}

// NewRegistryResolver returns a resolver over configs.
func NewRegistryResolver(registry *sites.Registry, configs map[string]config.SiteConfig, shared sites.Shared) *RegistryResolver {
	return &RegistryResolver{
		registry: registry,
		configs:  configs,
		shared:   shared,
		built:    make(map[string]SiteCrawler),
	}
}

// Crawler implements Resolver.
func (r *RegistryResolver) Crawler(id string) (SiteCrawler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.built[id]; ok {
		return c, nil
	}
	site, ok := r.configs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", sites.ErrUnknownSite, id)
	}
	c, err := r.registry.Build(id, site, r.shared)
	if err != nil {
		return nil, err
	}
	r.built[id] = c
	return c, nil
}
