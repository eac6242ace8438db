// Package sites maps configured site ids to crawler constructors. The set of
// supported sites is closed: adding a site means adding a Factory here.
package sites

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/config"
	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
)

// ID names a supported site.
type ID string

// ErrUnknownSite is returned for site ids without a registered Factory.
var ErrUnknownSite = errors.New("unknown site")

// Shared carries process-wide collaborators handed to every factory.
type Shared struct {
	Fetcher         crawler.Fetcher
	Artifacts       crawler.ArtifactStore
	Observer        crawler.FetchObserver
	Pauser          crawler.Pauser
	SessionPoolSize int
	Logger          *zap.Logger
}

// Factory builds the crawler for one configured site.
type Factory func(id ID, site config.SiteConfig, shared Shared) (*crawler.SiteCrawler, error)

// Registry is a static site-id to Factory mapping.
type Registry struct {
	factories map[ID]Factory
}

// NewRegistry returns a registry holding the given factories.
func NewRegistry(factories map[ID]Factory) *Registry {
	r := &Registry{factories: make(map[ID]Factory, len(factories))}
	for id, f := range factories {
		r.factories[id] = f
	}
	return r
}

// Default returns the registry of all built-in sites.
func Default() *Registry {
	return NewRegistry(map[ID]Factory{
		SiteReuters: NewReuters,
	})
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.factories[ID(id)]
	return ok
}

// IDs lists registered site ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return ids
}

// Build constructs the crawler for site id.
func (r *Registry) Build(id string, site config.SiteConfig, shared Shared) (*crawler.SiteCrawler, error) {
	factory, ok := r.factories[ID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSite, id)
	}
	if shared.Fetcher == nil {
		return nil, errors.New("sites: shared fetcher is required")
	}
	if shared.Logger == nil {
		shared.Logger = zap.NewNop()
	}
	c, err := factory(ID(id), site, shared)
	if err != nil {
		return nil, fmt.Errorf("build site %s: %w", id, err)
	}
	return c, nil
}
