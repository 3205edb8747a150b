// Package ratelimit provides a sliding-window request limiter shared by the
// upstream clients. Requests beyond the quota of the current window are delayed
// until a slot frees up, never dropped.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter blocks callers until a request may be issued.
type Limiter interface {
	// Wait blocks until the request is admitted or ctx is done.
	Wait(ctx context.Context) error
}

// SlidingWindow admits at most limit requests in any interval of length window.
//
// The zero value is not usable; build one with New.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	grants []time.Time // admission times inside the current window, oldest first
	now    func() time.Time
}

var _ Limiter = (*SlidingWindow)(nil)

// New returns a limiter admitting limit requests per window.
// A non-positive limit or window disables limiting.
func New(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		grants: make([]time.Time, 0, max(limit, 0)),
		now:    time.Now,
	}
}

// reserve records an admission if a slot is free. Otherwise it returns how long
// the caller must wait before the oldest admission leaves the window.
func (l *SlidingWindow) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	expired := 0
	for expired < len(l.grants) && !l.grants[expired].After(cutoff) {
		expired++
	}
	l.grants = append(l.grants[:0], l.grants[expired:]...)

	if len(l.grants) < l.limit {
		l.grants = append(l.grants, now)
		return 0, true
	}

	return l.grants[0].Add(l.window).Sub(now), false
}

// Wait implements Limiter.
func (l *SlidingWindow) Wait(ctx context.Context) error {
	if l.limit <= 0 || l.window <= 0 {
		return ctx.Err()
	}

	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InFlight reports how many admissions are still inside the window.
func (l *SlidingWindow) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, g := range l.grants {
		if g.After(cutoff) {
			n++
		}
	}
	return n
}
