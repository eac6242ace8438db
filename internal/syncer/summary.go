package syncer

import "time"

// RunSummary reports the outcome of one sync run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	TotalFound  int           `json:"total_found"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Interrupted bool          `json:"interrupted"`
	Sites       []SiteSummary `json:"sites"`
}

// SiteSummary reports one site's share of a run.
type SiteSummary struct {
	Site      string `json:"site"`
	Found     int    `json:"found"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// SuccessRate is Succeeded/TotalFound, or 0 when nothing was found.
func (s RunSummary) SuccessRate() float64 {
	if s.TotalFound == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.TotalFound)
}

// Skipped counts stubs that were never attempted because of shutdown.
func (s RunSummary) Skipped() int {
	return s.TotalFound - s.Succeeded - s.Failed
}

// Site returns the summary for id, if that site was visited.
func (s RunSummary) Site(id string) (SiteSummary, bool) {
	for _, site := range s.Sites {
		if site.Site == id {
			return site, true
		}
	}
	return SiteSummary{}, false
}
