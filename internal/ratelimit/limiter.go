// Package ratelimit enforces a rolling-window call budget: at most Limit
// admissions within any contiguous Window. Callers over budget are suspended,
// never rejected.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults match the OKX history-candles endpoint budget.
const (
	DefaultLimit  = 20
	DefaultWindow = 60 * time.Second
)

// Limiter is safe for concurrent use. One Limiter is one budget: every caller
// sharing it serializes through the same window.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	// admission times, oldest first, never longer than limit
	history []time.Time
}

// New returns a limiter admitting at most limit calls per rolling window.
// Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		history: make([]time.Time, 0, limit),
	}
}

// Acquire blocks until a slot is free and records the admission. The only
// error it returns is the context's.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := l.tryAcquire(time.Now())
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

// tryAcquire admits at now if the budget allows, otherwise it reports how long
// until the oldest admission leaves the window.
func (l *Limiter) tryAcquire(now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(now)
	if len(l.history) < l.limit {
		l.history = append(l.history, now)
		return 0, true
	}
	return l.history[0].Add(l.window).Sub(now), false
}

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	n := 0
	for n < len(l.history) && !l.history[n].After(cutoff) {
		n++
	}
	if n > 0 {
		l.history = append(l.history[:0], l.history[n:]...)
	}
}

// Available reports how many calls could be admitted right now without waiting.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(time.Now())
	return l.limit - len(l.history)
}

// Limit returns the configured budget.
func (l *Limiter) Limit() (int, time.Duration) {
	return l.limit, l.window
}
