package crawler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// VisitTracker records URLs already handled in one run.
type VisitTracker struct {
	seen sync.Map
}

// NewVisitTracker returns an empty tracker.
func NewVisitTracker() *VisitTracker {
	return &VisitTracker{}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *VisitTracker) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

// TimerPauser sleeps on a timer and wakes early when ctx is done.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// DelayRange is a closed interval sampled uniformly.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// jitter draws pacing delays. Crawls are sequential but the mutex keeps a
// shared instance safe.
type jitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newJitter(r *rand.Rand) *jitter {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &jitter{rng: r}
}

// Between samples uniformly from r.
func (j *jitter) Between(r DelayRange) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return r.Min + time.Duration(j.rng.Int64N(int64(r.Max-r.Min)+1))
}

// Around returns d scaled by a factor in [0.5, 1.5).
func (j *jitter) Around(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(float64(d) * (0.5 + j.rng.Float64()))
}
