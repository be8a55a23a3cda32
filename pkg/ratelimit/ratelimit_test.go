package ratelimit

import (
	"testing"
	"time"
)

// fixedClock pins a limiter to a controllable time.
func fixedClock(l *Limiter, start time.Time) *time.Time {
	current := start
	l.now = func() time.Time { return current }
	return &current
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute != 3000 {
		t.Errorf("expected 3000 requests per minute, got %d", cfg.RequestsPerMinute)
	}
	if cfg.RequestsPerDay != 1000000 {
		t.Errorf("expected 1000000 requests per day, got %d", cfg.RequestsPerDay)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	l := New(Config{})
	if l.cfg.RequestsPerMinute != 3000 {
		t.Errorf("expected default minute limit, got %d", l.cfg.RequestsPerMinute)
	}
	if l.cfg.RequestsPerDay != 1000000 {
		t.Errorf("expected default daily limit, got %d", l.cfg.RequestsPerDay)
	}
}

func TestLimiter_AllowUnderLimit(t *testing.T) {
	l := New(Config{RequestsPerMinute: 3, RequestsPerDay: 100})

	if !l.Allow() {
		t.Error("expected Allow with empty window")
	}

	l.Record()
	l.Record()

	if !l.Allow() {
		t.Error("expected Allow with 2 of 3 requests used")
	}
}

func TestLimiter_AllowDoesNotConsume(t *testing.T) {
	l := New(Config{RequestsPerMinute: 1, RequestsPerDay: 100})

	// Repeated checks must not use up the budget
	for i := 0; i < 10; i++ {
		if !l.Allow() {
			t.Fatalf("Allow consumed budget on check %d", i)
		}
	}

	l.Record()
	if l.Allow() {
		t.Error("expected Allow false after recording up to the limit")
	}
}

func TestLimiter_MinuteWindowSlides(t *testing.T) {
	l := New(Config{RequestsPerMinute: 2, RequestsPerDay: 100})
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(l, start)

	l.Record()
	l.Record()

	if l.Allow() {
		t.Error("expected Allow false with full minute window")
	}

	// Advance past the window; old timestamps age out
	*clock = start.Add(61 * time.Second)

	if !l.Allow() {
		t.Error("expected Allow true after window slides")
	}

	status := l.Status()
	if status.RequestsThisMinute != 0 {
		t.Errorf("expected 0 requests in window after slide, got %d", status.RequestsThisMinute)
	}
	if status.RequestsToday != 2 {
		t.Errorf("expected daily count to survive the slide, got %d", status.RequestsToday)
	}
}

func TestLimiter_WaitTime_MinuteLimit(t *testing.T) {
	l := New(Config{RequestsPerMinute: 1, RequestsPerDay: 100})
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(l, start)

	if l.WaitTime() != 0 {
		t.Errorf("expected zero wait with empty window, got %v", l.WaitTime())
	}

	l.Record()

	*clock = start.Add(10 * time.Second)
	if got := l.WaitTime(); got != 50*time.Second {
		t.Errorf("expected 50s wait, got %v", got)
	}

	*clock = start.Add(60 * time.Second)
	if got := l.WaitTime(); got != 0 {
		t.Errorf("expected zero wait after window expires, got %v", got)
	}
}

func TestLimiter_DailyQuota(t *testing.T) {
	l := New(Config{RequestsPerMinute: 100, RequestsPerDay: 2})
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(l, start)

	l.Record()
	l.Record()

	if l.Allow() {
		t.Error("expected Allow false with exhausted daily quota")
	}

	// Wait runs until midnight UTC even though the minute window is free.
	// Advance past the minute window first so only the quota binds.
	*clock = start.Add(2 * time.Minute)
	want := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC).Sub(*clock)
	if got := l.WaitTime(); got != want {
		t.Errorf("expected wait until daily reset %v, got %v", want, got)
	}
}

func TestLimiter_DailyReset(t *testing.T) {
	l := New(Config{RequestsPerMinute: 100, RequestsPerDay: 2})
	start := time.Date(2025, 1, 15, 23, 59, 0, 0, time.UTC)
	clock := fixedClock(l, start)

	l.Record()
	l.Record()
	if l.Allow() {
		t.Error("expected Allow false before reset")
	}

	// Cross midnight: counter resets and the reset time advances 24h
	*clock = start.Add(2 * time.Minute)

	if !l.Allow() {
		t.Error("expected Allow true after daily reset")
	}

	status := l.Status()
	if status.RequestsToday != 0 {
		t.Errorf("expected daily count 0 after reset, got %d", status.RequestsToday)
	}
	want := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
	if !status.DailyResetAt.Equal(want) {
		t.Errorf("expected next reset %v, got %v", want, status.DailyResetAt)
	}
}

func TestLimiter_DailyResetSkipsMissedDays(t *testing.T) {
	l := New(Config{RequestsPerMinute: 100, RequestsPerDay: 10})
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(l, start)

	l.Record()

	// Process idle across several days; reset must land in the future
	*clock = start.Add(73 * time.Hour)
	status := l.Status()

	if status.RequestsToday != 0 {
		t.Errorf("expected daily count 0 after idle days, got %d", status.RequestsToday)
	}
	if !status.DailyResetAt.After(*clock) {
		t.Errorf("expected reset after current time, got %v", status.DailyResetAt)
	}
}

func TestLimiter_Status(t *testing.T) {
	l := New(Config{RequestsPerMinute: 5, RequestsPerDay: 50})
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	fixedClock(l, start)

	l.Record()
	l.Record()
	l.Record()

	status := l.Status()
	if status.RequestsThisMinute != 3 {
		t.Errorf("expected 3 requests this minute, got %d", status.RequestsThisMinute)
	}
	if status.RequestsToday != 3 {
		t.Errorf("expected 3 requests today, got %d", status.RequestsToday)
	}
	if status.MinuteLimit != 5 {
		t.Errorf("expected minute limit 5, got %d", status.MinuteLimit)
	}
	if status.DailyLimit != 50 {
		t.Errorf("expected daily limit 50, got %d", status.DailyLimit)
	}
	want := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	if !status.DailyResetAt.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, status.DailyResetAt)
	}
}

func BenchmarkLimiter_AllowRecord(b *testing.B) {
	l := New(DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if l.Allow() {
			l.Record()
		}
	}
}
