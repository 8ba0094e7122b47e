package ratelimit

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestTokenBucketSingleToken(t *testing.T) {
	tb := NewTokenBucket(Config{
		Capacity:       1,
		RefillInterval: 100 * time.Millisecond,
	})

	allowed, remaining, _ := tb.Allow("client-1")
	if !allowed {
		t.Fatal("first request should be admitted")
	}
	if remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", remaining)
	}

	allowed, _, _ = tb.Allow("client-1")
	if allowed {
		t.Fatal("second request within the window should be rejected")
	}

	time.Sleep(120 * time.Millisecond)

	allowed, _, _ = tb.Allow("client-1")
	if !allowed {
		t.Fatal("request after the refill interval should be admitted")
	}
}

func TestTokenBucketGreedyRefill(t *testing.T) {
	tb := NewTokenBucket(Config{
		Capacity:       3,
		RefillInterval: 50 * time.Millisecond,
	})

	// Drain the bucket
	for i := 0; i < 3; i++ {
		if allowed, _, _ := tb.Allow("k"); !allowed {
			t.Fatalf("request %d should be admitted from a full bucket", i)
		}
	}
	if allowed, _, _ := tb.Allow("k"); allowed {
		t.Fatal("drained bucket should reject")
	}

	// Two whole intervals elapse: two tokens granted at once.
	time.Sleep(110 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if allowed, _, _ := tb.Allow("k"); !allowed {
			t.Fatalf("refilled request %d should be admitted", i)
		}
	}
	if allowed, _, _ := tb.Allow("k"); allowed {
		t.Fatal("third request should be rejected; only two intervals elapsed")
	}
}

func TestTokenBucketRefillCapped(t *testing.T) {
	tb := NewTokenBucket(Config{
		Capacity:       1,
		RefillInterval: 20 * time.Millisecond,
	})

	if allowed, _, _ := tb.Allow("k"); !allowed {
		t.Fatal("first request should be admitted")
	}

	// Far more intervals than capacity elapse; the grant must cap at 1.
	time.Sleep(100 * time.Millisecond)

	if allowed, _, _ := tb.Allow("k"); !allowed {
		t.Fatal("request after idle period should be admitted")
	}
	if allowed, _, _ := tb.Allow("k"); allowed {
		t.Fatal("bucket must not accumulate beyond capacity")
	}
}

func TestTokenBucketKeyIsolation(t *testing.T) {
	tb := NewTokenBucket(Config{
		Capacity:       1,
		RefillInterval: time.Minute,
	})

	if allowed, _, _ := tb.Allow("key1"); !allowed {
		t.Fatal("key1 should be admitted")
	}
	if allowed, _, _ := tb.Allow("key1"); allowed {
		t.Fatal("key1 should be exhausted")
	}

	// key2 is unaffected by key1's state
	if allowed, _, _ := tb.Allow("key2"); !allowed {
		t.Fatal("key2 should have its own bucket")
	}
}

func TestTokenBucketConcurrentSameKey(t *testing.T) {
	const workers = 50
	tb := NewTokenBucket(Config{
		Capacity:       1,
		RefillInterval: time.Minute,
	})

	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, _ := tb.Allow("shared")
			results <- allowed
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	if admitted != 1 {
		t.Errorf("exactly one concurrent request may consume the single token, got %d", admitted)
	}
}

func TestPeek(t *testing.T) {
	tb := NewTokenBucket(Config{Capacity: 1, RefillInterval: time.Minute})

	if _, ok := tb.Peek("ghost"); ok {
		t.Error("Peek must not create a bucket")
	}

	tb.Allow("seen")
	tokens, ok := tb.Peek("seen")
	if !ok {
		t.Fatal("bucket should exist after Allow")
	}
	if tokens != 0 {
		t.Errorf("expected 0 tokens after consumption, got %d", tokens)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"no header", "", "10.0.0.7:4431", "10.0.0.7"},
		{"single hop", "203.0.113.5", "10.0.0.7:4431", "203.0.113.5"},
		{"multiple hops", "203.0.113.5, 70.41.3.18, 150.172.238.178", "10.0.0.7:4431", "203.0.113.5"},
		{"padded", "  203.0.113.5  ", "10.0.0.7:4431", "203.0.113.5"},
		{"blank header", "   ", "10.0.0.7:4431", "10.0.0.7"},
		{"unparseable peer", "", "unix-socket", "unix-socket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientKey(r); got != tt.want {
				t.Errorf("ClientKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLimiterMiddleware(t *testing.T) {
	l := NewLimiter(Config{Capacity: 1, RefillInterval: time.Minute})
	handler := l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "Too Many Requests — Please slow down!" {
		t.Errorf("unexpected rejection body: %q", body)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("rejection should carry Retry-After")
	}
}

func TestLimiterMiddlewareDistinctClients(t *testing.T) {
	l := NewLimiter(Config{Capacity: 1, RefillInterval: time.Minute})
	handler := l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = fmt.Sprintf("192.0.2.%d:1234", i+1)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("client %d: expected 200, got %d", i, rec.Code)
		}
	}
}
