// Package ratelimit enforces embedding API request budgets with a sliding
// minute window and a daily quota sharing one clock.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds limiter settings.
type Config struct {
	// RequestsPerMinute is the sliding 60-second window limit.
	RequestsPerMinute int

	// RequestsPerDay is the daily quota, reset at midnight UTC.
	RequestsPerDay int
}

// DefaultConfig returns limits matching the OpenAI embeddings tier.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 3000,
		RequestsPerDay:    1000000,
	}
}

// Status is a point-in-time snapshot of limiter state.
type Status struct {
	RequestsThisMinute int
	RequestsToday      int
	MinuteLimit        int
	DailyLimit         int
	DailyResetAt       time.Time
}

// Limiter tracks request timestamps over a sliding minute window plus a
// daily counter. All methods are safe for concurrent use and none of
// them block; callers decide how to wait.
type Limiter struct {
	mu           sync.Mutex
	cfg          Config
	window       []time.Time
	dailyCount   int
	dailyResetAt time.Time

	// now is replaceable in tests
	now func() time.Time
}

// New creates a Limiter. Non-positive limits fall back to defaults.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.RequestsPerDay <= 0 {
		cfg.RequestsPerDay = DefaultConfig().RequestsPerDay
	}

	return &Limiter{
		cfg: cfg,
		now: time.Now,
	}
}

// Allow reports whether a request may be made right now. It prunes the
// minute window and rolls the daily counter but records nothing.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.advance(l.now())

	return len(l.window) < l.cfg.RequestsPerMinute && l.dailyCount < l.cfg.RequestsPerDay
}

// Record counts one completed request against both windows. Call it only
// after the provider call actually succeeded, so failed attempts never
// consume budget.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.advance(now)

	l.window = append(l.window, now)
	l.dailyCount++
}

// WaitTime returns how long to wait until a request would be allowed.
// Zero means a request is allowed now. When the minute window is full
// the wait runs until the oldest timestamp ages out; when the daily
// quota is exhausted it runs until the daily reset.
func (l *Limiter) WaitTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.advance(now)

	if len(l.window) >= l.cfg.RequestsPerMinute {
		wait := time.Minute - now.Sub(l.window[0])
		if wait < 0 {
			wait = 0
		}
		return wait
	}

	if l.dailyCount >= l.cfg.RequestsPerDay {
		wait := l.dailyResetAt.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait
	}

	return 0
}

// Status returns a snapshot of the limiter state.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.advance(l.now())

	return Status{
		RequestsThisMinute: len(l.window),
		RequestsToday:      l.dailyCount,
		MinuteLimit:        l.cfg.RequestsPerMinute,
		DailyLimit:         l.cfg.RequestsPerDay,
		DailyResetAt:       l.dailyResetAt,
	}
}

// advance prunes window entries older than one minute and rolls the
// daily counter across day boundaries. Callers must hold mu.
func (l *Limiter) advance(now time.Time) {
	if l.dailyResetAt.IsZero() {
		l.dailyResetAt = nextMidnightUTC(now)
	}

	cutoff := now.Add(-time.Minute)
	idx := 0
	for idx < len(l.window) && !l.window[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.window = append(l.window[:0], l.window[idx:]...)
	}

	for !now.Before(l.dailyResetAt) {
		l.dailyResetAt = l.dailyResetAt.Add(24 * time.Hour)
		l.dailyCount = 0
	}
}

func nextMidnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
