// Package ratelimit enforces per-user generation quotas: a rolling daily
// window, an optional hourly ceiling, and a minimum cooldown between
// consecutive requests. The store is owned exclusively by the Limiter;
// callers never mutate usage records directly.
package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Config holds the process-wide limiter settings.
type Config struct {
	FreeDailyLimit int
	Cooldown       time.Duration
	HourlyCeiling  int // 0 disables the hourly check
}

// UsageRecord tracks one user's consumption. Created lazily on first
// request and reset in place on window rollover.
type UsageRecord struct {
	Count         int
	HourCount     int
	WindowStart   time.Time
	HourStart     time.Time
	LastRequestAt time.Time
}

// Usage is the read-only view returned to callers.
type Usage struct {
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Limiter is safe for concurrent use. Check-and-increment is a single
// atomic step under the lock, so two simultaneous requests from one user
// can never both claim the last remaining slot.
type Limiter struct {
	mu    sync.Mutex
	users map[string]*UsageRecord
	cfg   Config
	now   func() time.Time
}

// NewLimiter builds a limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	if cfg.FreeDailyLimit <= 0 {
		cfg.FreeDailyLimit = 5
	}
	return &Limiter{
		users: make(map[string]*UsageRecord),
		cfg:   cfg,
		now:   time.Now,
	}
}

const window = 24 * time.Hour

// Check admits or denies a request for userID. On admission the slot is
// consumed immediately; it is deliberately not refunded if the generation
// later fails, which keeps retry loops from stretching the quota.
func (l *Limiter) Check(userID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.users[userID]
	if !ok {
		rec = &UsageRecord{WindowStart: now, HourStart: now}
		l.users[userID] = rec
	}

	if now.Sub(rec.WindowStart) >= window {
		rec.Count = 0
		rec.WindowStart = now
	}
	if now.Sub(rec.HourStart) >= time.Hour {
		rec.HourCount = 0
		rec.HourStart = now
	}

	if rec.Count >= l.cfg.FreeDailyLimit {
		resetAt := rec.WindowStart.Add(window)
		return false, fmt.Sprintf("daily limit of %d generations reached, resets at %s",
			l.cfg.FreeDailyLimit, resetAt.UTC().Format(time.RFC3339))
	}
	if l.cfg.HourlyCeiling > 0 && rec.HourCount >= l.cfg.HourlyCeiling {
		return false, fmt.Sprintf("hourly ceiling of %d generations reached, retry after %s",
			l.cfg.HourlyCeiling, rec.HourStart.Add(time.Hour).UTC().Format(time.RFC3339))
	}
	if l.cfg.Cooldown > 0 && !rec.LastRequestAt.IsZero() {
		if elapsed := now.Sub(rec.LastRequestAt); elapsed < l.cfg.Cooldown {
			remaining := l.cfg.Cooldown - elapsed
			return false, fmt.Sprintf("cooldown active, retry in %ds",
				int(remaining.Round(time.Second).Seconds()))
		}
	}

	rec.Count++
	rec.HourCount++
	rec.LastRequestAt = now
	return true, ""
}

// IsDenialMessage reports whether msg came from Check's denial path. The
// HTTP layer uses it to map quota denials onto 429 responses.
func IsDenialMessage(msg string) bool {
	return strings.HasPrefix(msg, "daily limit") ||
		strings.HasPrefix(msg, "hourly ceiling") ||
		strings.HasPrefix(msg, "cooldown active")
}

// Usage reports the user's current consumption without mutating state. The
// hypothetical window rollover is applied to the reported numbers so a
// stale record never shows an exhausted quota past its reset time.
func (l *Limiter) Usage(userID string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	u := Usage{Limit: l.cfg.FreeDailyLimit}
	rec, ok := l.users[userID]
	if !ok {
		u.Remaining = u.Limit
		u.ResetAt = now.Add(window)
		return u
	}

	count := rec.Count
	windowStart := rec.WindowStart
	if now.Sub(windowStart) >= window {
		count = 0
		windowStart = now
	}
	u.Count = count
	u.Remaining = u.Limit - count
	if u.Remaining < 0 {
		u.Remaining = 0
	}
	u.ResetAt = windowStart.Add(window)
	return u
}
