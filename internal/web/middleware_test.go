package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitRetryAfterFollowsWindow(t *testing.T) {
	cases := []struct {
		requests int
		window   time.Duration
		want     string
	}{
		{2, time.Minute, "30"},
		{10, 30 * time.Second, "3"},
		{100, time.Minute, "1"},
		{1, 5 * time.Minute, "300"},
	}
	for _, tc := range cases {
		h := RateLimitMiddleware(tc.requests, tc.window)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		var rec *httptest.ResponseRecorder
		for i := 0; i < tc.requests+1; i++ {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = "10.0.0.1:5000"
			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code == http.StatusTooManyRequests {
				break
			}
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("%d/%s: never limited", tc.requests, tc.window)
		}
		if got := rec.Header().Get("Retry-After"); got != tc.want {
			t.Fatalf("%d/%s: Retry-After %q, want %q", tc.requests, tc.window, got, tc.want)
		}
	}
}

func TestIPLimiterDropsIdleClients(t *testing.T) {
	l := newIPLimiter(10, time.Minute)
	now := kickoffTime
	l.now = func() time.Time { return now }
	l.lastSweep = now

	l.getLimiter("10.0.0.1")
	l.getLimiter("10.0.0.2")
	if l.size() != 2 {
		t.Fatalf("got %d limiters, want 2", l.size())
	}

	now = now.Add(45 * time.Second)
	l.getLimiter("10.0.0.2")

	// Past one window since the last sweep: .1 has been idle too long, .2
	// was seen 30s ago and stays.
	now = now.Add(30 * time.Second)
	l.getLimiter("10.0.0.3")
	if l.size() != 2 {
		t.Fatalf("got %d limiters after sweep, want 2", l.size())
	}
	l.mu.Lock()
	_, stale := l.limiters["10.0.0.1"]
	_, kept := l.limiters["10.0.0.2"]
	l.mu.Unlock()
	if stale || !kept {
		t.Fatalf("stale=%v kept=%v", stale, kept)
	}
}

func TestIPLimiterGivesEvictedClientFreshBucket(t *testing.T) {
	l := newIPLimiter(2, time.Minute)
	now := kickoffTime
	l.now = func() time.Time { return now }
	l.lastSweep = now

	first := l.getLimiter("10.0.0.1")
	now = now.Add(2 * time.Minute)
	l.getLimiter("10.0.0.9")
	if l.getLimiter("10.0.0.9") == nil || l.size() != 1 {
		t.Fatalf("idle client not swept, size %d", l.size())
	}
	if l.getLimiter("10.0.0.1") == first {
		t.Fatal("evicted client should get a fresh bucket")
	}
}

var kickoffTime = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
