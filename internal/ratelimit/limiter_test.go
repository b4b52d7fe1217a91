package ratelimit

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(cfg Config) (*Limiter, *time.Time) {
	l := NewLimiter(cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheckConsumesDailyQuota(t *testing.T) {
	l, now := newTestLimiter(Config{FreeDailyLimit: 3})

	for i := 0; i < 3; i++ {
		allowed, msg := l.Check("user-1")
		if !allowed {
			t.Fatalf("request %d denied: %s", i+1, msg)
		}
		*now = now.Add(time.Minute)
	}

	allowed, msg := l.Check("user-1")
	if allowed {
		t.Fatal("4th request should be denied")
	}
	if !strings.Contains(msg, "daily limit of 3") {
		t.Fatalf("denial message = %q", msg)
	}
	if !strings.Contains(msg, "resets at") {
		t.Fatalf("denial message missing reset time: %q", msg)
	}
}

func TestCheckWindowRollover(t *testing.T) {
	l, now := newTestLimiter(Config{FreeDailyLimit: 1})

	if allowed, _ := l.Check("user-1"); !allowed {
		t.Fatal("first request denied")
	}
	if allowed, _ := l.Check("user-1"); allowed {
		t.Fatal("second request within window should be denied")
	}

	*now = now.Add(24*time.Hour + time.Second)
	if allowed, msg := l.Check("user-1"); !allowed {
		t.Fatalf("request after rollover denied: %s", msg)
	}
}

func TestCheckCooldown(t *testing.T) {
	l, now := newTestLimiter(Config{FreeDailyLimit: 10, Cooldown: 30 * time.Second})

	if allowed, _ := l.Check("user-1"); !allowed {
		t.Fatal("first request denied")
	}

	*now = now.Add(5 * time.Second)
	allowed, msg := l.Check("user-1")
	if allowed {
		t.Fatal("request inside cooldown should be denied")
	}
	if !strings.Contains(msg, "cooldown active") {
		t.Fatalf("denial message = %q", msg)
	}

	*now = now.Add(30 * time.Second)
	if allowed, msg := l.Check("user-1"); !allowed {
		t.Fatalf("request after cooldown denied: %s", msg)
	}
}

func TestCheckHourlyCeiling(t *testing.T) {
	l, now := newTestLimiter(Config{FreeDailyLimit: 100, HourlyCeiling: 2})

	for i := 0; i < 2; i++ {
		if allowed, msg := l.Check("user-1"); !allowed {
			t.Fatalf("request %d denied: %s", i+1, msg)
		}
		*now = now.Add(time.Minute)
	}
	allowed, msg := l.Check("user-1")
	if allowed {
		t.Fatal("request over hourly ceiling should be denied")
	}
	if !strings.Contains(msg, "hourly ceiling of 2") {
		t.Fatalf("denial message = %q", msg)
	}

	*now = now.Add(time.Hour)
	if allowed, msg := l.Check("user-1"); !allowed {
		t.Fatalf("request after hour rollover denied: %s", msg)
	}
}

func TestCheckIsolatesUsers(t *testing.T) {
	l, _ := newTestLimiter(Config{FreeDailyLimit: 1})

	if allowed, _ := l.Check("user-1"); !allowed {
		t.Fatal("user-1 first request denied")
	}
	if allowed, _ := l.Check("user-2"); !allowed {
		t.Fatal("user-2 should have an independent quota")
	}
}

func TestUsageDoesNotMutate(t *testing.T) {
	l, now := newTestLimiter(Config{FreeDailyLimit: 5})

	l.Check("user-1")
	*now = now.Add(time.Minute)
	l.Check("user-1")

	for i := 0; i < 10; i++ {
		u := l.Usage("user-1")
		if u.Count != 2 || u.Remaining != 3 {
			t.Fatalf("Usage() = %+v, want count 2 remaining 3", u)
		}
	}

	u := l.Usage("unseen-user")
	if u.Count != 0 || u.Remaining != 5 {
		t.Fatalf("Usage() for unseen user = %+v", u)
	}
}

func TestUsageReportsRollover(t *testing.T) {
	l, now := newTestLimiter(Config{FreeDailyLimit: 2})

	l.Check("user-1")
	l.Check("user-1")

	*now = now.Add(25 * time.Hour)
	u := l.Usage("user-1")
	if u.Count != 0 || u.Remaining != 2 {
		t.Fatalf("Usage() after window passed = %+v, want fresh quota", u)
	}
	if !u.ResetAt.After(*now) {
		t.Fatalf("ResetAt %s should be in the future", u.ResetAt)
	}
}

func TestCheckConcurrentLastSlot(t *testing.T) {
	l := NewLimiter(Config{FreeDailyLimit: 1})

	var wg sync.WaitGroup
	granted := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Check("user-1")
			granted <- ok
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for ok := range granted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("%d requests claimed the single slot", count)
	}
}

func TestIsDenialMessage(t *testing.T) {
	l, _ := newTestLimiter(Config{FreeDailyLimit: 1, Cooldown: time.Minute})
	l.Check("user-1")
	_, msg := l.Check("user-1")
	if !IsDenialMessage(msg) {
		t.Fatalf("IsDenialMessage(%q) = false", msg)
	}
	if IsDenialMessage("engine REPLICATE not configured") {
		t.Fatal("engine failure misclassified as denial")
	}
}
