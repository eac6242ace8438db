// Package session maintains the pool of client identities used to fetch
// pages. An identity bundles a browser-like header set, a cookie jar and an
// optional proxy, and is leased to exactly one request at a time.
package session

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// DefaultPoolSize is the number of rotating identities when none is configured.
const DefaultPoolSize = 3

// Config controls identity construction.
type Config struct {
	Size           int
	CookiesEnabled bool
	Proxies        []string
}

// Identity is one coherent client fingerprint. Fields are only touched while
// the identity is leased.
type Identity struct {
	mu      sync.Mutex
	id      int
	headers http.Header
	jar     http.CookieJar
	proxy   string
}

// ID identifies the identity in logs; 0 is the primary identity.
func (i *Identity) ID() int {
	return i.id
}

// Headers returns a copy of the identity's header set.
func (i *Identity) Headers() http.Header {
	return i.headers.Clone()
}

// SetHeader overrides one header on the leased identity.
func (i *Identity) SetHeader(key, value string) {
	i.headers.Set(key, value)
}

// Jar returns the identity's cookie jar, or nil when cookies are disabled.
func (i *Identity) Jar() http.CookieJar {
	return i.jar
}

// Proxy returns the proxy URL assigned to the identity, if any.
func (i *Identity) Proxy() string {
	return i.proxy
}

// Release returns a leased identity to the pool.
func (i *Identity) Release() {
	i.mu.Unlock()
}

// Option customises a Pool.
type Option func(*Pool)

// WithRand swaps the random source used for user agents and proxy choice.
func WithRand(r *rand.Rand) Option {
	return func(p *Pool) {
		p.rng = r
	}
}

// Pool rotates a fixed set of identities round-robin and keeps a separate
// primary identity for list-page navigation.
type Pool struct {
	cfg     Config
	rng     *rand.Rand
	rngMu   sync.Mutex
	mu      sync.Mutex
	primary *Identity
	members []*Identity
	next    int
}

// New builds a pool with cfg.Size rotating identities plus the primary one.
func New(cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultPoolSize
	}
	p := &Pool{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}

	primary, err := p.newIdentity(0)
	if err != nil {
		return nil, err
	}
	p.primary = primary
	p.members = make([]*Identity, 0, cfg.Size)
	for i := 1; i <= cfg.Size; i++ {
		member, err := p.newIdentity(i)
		if err != nil {
			return nil, err
		}
		p.members = append(p.members, member)
	}
	return p, nil
}

// Size returns the number of rotating identities.
func (p *Pool) Size() int {
	return len(p.members)
}

// Primary leases the primary identity. Callers must Release it.
func (p *Pool) Primary() *Identity {
	p.primary.mu.Lock()
	return p.primary
}

// Acquire leases the next rotating identity. Callers must Release it.
func (p *Pool) Acquire() *Identity {
	p.mu.Lock()
	member := p.members[p.next]
	p.next = (p.next + 1) % len(p.members)
	p.mu.Unlock()

	member.mu.Lock()
	return member
}

// RefreshPrimary regenerates the primary identity's headers, clears its
// cookies when cookies are enabled and re-picks its proxy.
func (p *Pool) RefreshPrimary() {
	p.primary.mu.Lock()
	defer p.primary.mu.Unlock()

	p.primary.headers = p.browserHeaders()
	if p.cfg.CookiesEnabled {
		// A fresh jar is the only way to clear a cookiejar.Jar.
		if jar, err := newJar(); err == nil {
			p.primary.jar = jar
		}
	}
	p.primary.proxy = p.pickProxy()
}

// RandomUserAgent returns a user agent drawn from the built-in pool.
func (p *Pool) RandomUserAgent() string {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return userAgents[p.rng.IntN(len(userAgents))]
}

func (p *Pool) newIdentity(id int) (*Identity, error) {
	identity := &Identity{
		id:      id,
		headers: p.browserHeaders(),
		proxy:   p.pickProxy(),
	}
	if p.cfg.CookiesEnabled {
		jar, err := newJar()
		if err != nil {
			return nil, err
		}
		identity.jar = jar
	}
	return identity, nil
}

func (p *Pool) pickProxy() string {
	if len(p.cfg.Proxies) == 0 {
		return ""
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.cfg.Proxies[p.rng.IntN(len(p.cfg.Proxies))]
}

func (p *Pool) browserHeaders() http.Header {
	h := make(http.Header, 12)
	h.Set("User-Agent", p.RandomUserAgent())
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	// Only gzip is transparently decoded by the fetch backend.
	h.Set("Accept-Encoding", "gzip")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")
	return h
}

func newJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return jar, nil
}
