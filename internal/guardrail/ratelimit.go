package guardrail

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter counts messages per sender in fixed windows. A sender's window
// starts with its first message and resets once it expires.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	windows map[string]*window
	now     func() time.Time
}

// NewRateLimiter allows limit messages per period for each sender.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		period:  period,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records one message from sender and reports whether it is within the limit.
func (r *RateLimiter) Allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[sender]
	if !ok || !now.Before(w.resetAt) {
		r.windows[sender] = &window{count: 1, resetAt: now.Add(r.period)}
		return true
	}
	if w.count >= r.limit {
		return false
	}
	w.count++
	return true
}

// Sweep drops expired windows and returns how many were removed.
func (r *RateLimiter) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for sender, w := range r.windows {
		if !now.Before(w.resetAt) {
			delete(r.windows, sender)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked senders.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// Run sweeps expired windows every interval until ctx is done.
func (r *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
