package memory

import (
	"sync"

	"github.com/JakeFAU/newsdesk-sync/internal/syncer"
)

// DefaultRunCapacity bounds the number of summaries kept.
const DefaultRunCapacity = 100

// RunStore keeps the most recent run summaries, newest first.
type RunStore struct {
	mu       sync.RWMutex
	capacity int
	runs     []syncer.RunSummary
}

// NewRunStore constructs a RunStore holding at most capacity summaries.
func NewRunStore(capacity int) *RunStore {
	if capacity <= 0 {
		capacity = DefaultRunCapacity
	}
	return &RunStore{capacity: capacity}
}

// Record implements syncer.History.
func (s *RunStore) Record(summary syncer.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary.Sites = append([]syncer.SiteSummary(nil), summary.Sites...)
	s.runs = append([]syncer.RunSummary{summary}, s.runs...)
	if len(s.runs) > s.capacity {
		s.runs = s.runs[:s.capacity]
	}
}

// Latest returns the most recent summary.
func (s *RunStore) Latest() (syncer.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return syncer.RunSummary{}, false
	}
	return s.runs[0], true
}

// Get returns the summary for runID.
func (s *RunStore) Get(runID string) (syncer.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		if run.RunID == runID {
			return run, true
		}
	}
	return syncer.RunSummary{}, false
}

// List returns up to limit summaries starting at offset, newest first.
func (s *RunStore) List(limit, offset int) []syncer.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset >= len(s.runs) || limit <= 0 {
		return []syncer.RunSummary{}
	}
	end := min(offset+limit, len(s.runs))
	out := make([]syncer.RunSummary, end-offset)
	copy(out, s.runs[offset:end])
	return out
}
