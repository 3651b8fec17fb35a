package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(clock Clock) *Limiter {
	return New(&Config{
		MaxAttempts:          3,
		Lockout:              5 * time.Minute,
		MaxIPPerHour:         5,
		MaxRequestsPerMinute: 3,
		Clock:                clock,
	})
}

func TestAllowRequestPerMinuteCap(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	defer l.Close()

	const ip = "203.0.113.7"

	for i := 0; i < 3; i++ {
		if res := l.AllowRequest(ip); !res.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v", i, res)
		}
	}

	res := l.AllowRequest(ip)
	if res.Allowed {
		t.Fatal("expected fourth request in the same minute to be denied")
	}
	if res.Reason != "request_limit" {
		t.Fatalf("expected request_limit reason, got %q", res.Reason)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", res.RetryAfter)
	}

	// Other IPs are unaffected.
	if res := l.AllowRequest("198.51.100.9"); !res.Allowed {
		t.Fatalf("expected other IP to be allowed, got %+v", res)
	}

	// The window rolls over.
	clock.advance(61 * time.Second)
	if res := l.AllowRequest(ip); !res.Allowed {
		t.Fatalf("expected new window to allow, got %+v", res)
	}
}

func TestLoginLockoutAfterMaxAttempts(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	defer l.Close()

	const id = "user@example.com"
	const ip = "203.0.113.7"

	for i := 0; i < 2; i++ {
		if res := l.CheckLogin(id, ip); !res.Allowed {
			t.Fatalf("attempt %d: expected allowed, got %+v", i, res)
		}
		if locked := l.RecordLoginFailure(id, ip); locked {
			t.Fatalf("attempt %d: unexpected lockout", i)
		}
	}

	// Third failure triggers the lockout.
	if locked := l.RecordLoginFailure(id, ip); !locked {
		t.Fatal("expected lockout on final attempt")
	}

	res := l.CheckLogin(id, ip)
	if res.Allowed {
		t.Fatal("expected check to be denied during lockout")
	}
	if res.Reason != "lockout" {
		t.Fatalf("expected lockout reason, got %q", res.Reason)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 5*time.Minute {
		t.Fatalf("unexpected retry-after %v", res.RetryAfter)
	}
}

func TestLoginLockoutExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	defer l.Close()

	const id = "user@example.com"
	const ip = "203.0.113.7"

	for i := 0; i < 3; i++ {
		l.RecordLoginFailure(id, ip)
	}
	if res := l.CheckLogin(id, ip); res.Allowed {
		t.Fatal("expected denial during lockout")
	}

	clock.advance(6 * time.Minute)
	if res := l.CheckLogin(id, ip); !res.Allowed {
		t.Fatalf("expected lockout to expire, got %+v", res)
	}
}

func TestResetClearsFailures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	defer l.Close()

	const id = "User@Example.com"
	const ip = "203.0.113.7"

	l.RecordLoginFailure(id, ip)
	l.RecordLoginFailure(id, ip)
	// Case variations hash to the same key.
	l.ResetLoginAttempts("user@example.com")
	l.RecordLoginFailure(id, ip)
	l.RecordLoginFailure(id, ip)

	if res := l.CheckLogin(id, ip); !res.Allowed {
		t.Fatalf("expected reset to clear counter, got %+v", res)
	}
}

func TestPerIPHourlyLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	defer l.Close()

	const ip = "203.0.113.7"

	// Five distinct accounts from the same IP exhaust the hourly budget.
	ids := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"}
	for _, id := range ids {
		l.RecordLoginFailure(id, ip)
	}

	res := l.CheckLogin("f@x.com", ip)
	if res.Allowed {
		t.Fatal("expected IP limit to deny")
	}
	if res.Reason != "ip_hourly_limit" {
		t.Fatalf("expected ip_hourly_limit reason, got %q", res.Reason)
	}

	clock.advance(61 * time.Minute)
	if res := l.CheckLogin("f@x.com", ip); !res.Allowed {
		t.Fatalf("expected IP window to roll over, got %+v", res)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		trustProxy bool
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "xff ignored when proxy untrusted",
			remoteAddr: "203.0.113.7:51234",
			xff:        "198.51.100.9",
			want:       "203.0.113.7",
		},
		{
			name:       "xff rightmost public ip when trusted",
			remoteAddr: "10.0.0.1:80",
			xff:        "198.51.100.9, 10.0.0.2",
			trustProxy: true,
			want:       "198.51.100.9",
		},
		{
			name:       "all private falls back to last",
			remoteAddr: "10.0.0.1:80",
			xff:        "192.168.1.4, 10.0.0.2",
			trustProxy: true,
			want:       "10.0.0.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/login", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := GetClientIP(r, tt.trustProxy); got != tt.want {
				t.Fatalf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "al***@example.com"},
		{"al@example.com", "***@example.com"},
		{"15551234567", "***4567"},
		{"abc", "***"},
	}
	for _, tt := range tests {
		if got := SanitizeIdentifier(tt.in); got != tt.want {
			t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
