package sites

import (
	"github.com/JakeFAU/newsdesk-sync/internal/config"
	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
	"github.com/JakeFAU/newsdesk-sync/internal/parser"
)

// SiteReuters is the Reuters world-news listing.
const SiteReuters ID = "reuters"

// reutersBlockMarkers extends the generic markers with the interstitial the
// site serves to suspected bots.
var reutersBlockMarkers = append(append([]string{}, parser.DefaultBlockMarkers...),
	"div#px-captcha",
)

// NewReuters builds the Reuters crawler.
func NewReuters(id ID, site config.SiteConfig, shared Shared) (*crawler.SiteCrawler, error) {
	return buildStandard(id, site, shared, reutersBlockMarkers)
}
