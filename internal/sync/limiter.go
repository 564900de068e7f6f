package sync

import (
	"context"
	gosync "sync"
	"time"

	"golang.org/x/time/rate"
)

// projectLimiter paces gate evaluations per project.
type projectLimiter struct {
	mu         gosync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	rate       rate.Limit
	burst      int
}

// newProjectLimiter allows perMinute evaluations per project. A
// non-positive perMinute disables pacing.
func newProjectLimiter(perMinute int) *projectLimiter {
	l := &projectLimiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		rate:       rate.Inf,
		burst:      1,
	}
	if perMinute > 0 {
		l.rate = rate.Limit(float64(perMinute) / 60.0)
		l.burst = max(1, perMinute/10)
	}
	return l
}

func (l *projectLimiter) get(projectID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[projectID]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[projectID] = limiter
	}
	l.lastAccess[projectID] = time.Now()
	return limiter
}

// Wait blocks until projectID may run another evaluation.
func (l *projectLimiter) Wait(ctx context.Context, projectID string) error {
	return l.get(projectID).Wait(ctx)
}

// Evict drops limiters for projects not seen within maxAge.
func (l *projectLimiter) Evict(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for id, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.limiters, id)
			delete(l.lastAccess, id)
		}
	}
}
