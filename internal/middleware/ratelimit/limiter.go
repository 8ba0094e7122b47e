// Package ratelimit implements per-client token bucket rate limiting with a
// lazily populated bucket registry. Buckets refill greedily: as many whole
// tokens as elapsed time allows, capped at capacity.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tollgate-io/tollgate/internal/errors"
	"github.com/tollgate-io/tollgate/internal/middleware"
)

// Config holds rate limiter configuration
type Config struct {
	Capacity       int           // max tokens per bucket
	RefillInterval time.Duration // one token per interval
	IdleEviction   bool          // sweep idle buckets
	IdleAfter      time.Duration // idle cutoff; default 2x RefillInterval
	SweepInterval  time.Duration // sweep period; default 5m
}

// bucket is rate-limit state for one client key. Access is serialized by
// the owning shard's lock.
type bucket struct {
	tokens     int
	lastRefill time.Time
}

// TokenBucket implements token bucket rate limiting across client keys,
// creating a bucket lazily the first time a key is seen.
type TokenBucket struct {
	capacity    int
	capacityStr string // cached strconv.Itoa(capacity) for headers
	interval    time.Duration
	buckets     *shardedMap[*bucket]
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(cfg Config) *TokenBucket {
	if cfg.Capacity == 0 {
		cfg.Capacity = 1
	}
	if cfg.RefillInterval == 0 {
		cfg.RefillInterval = 10 * time.Second
	}

	tb := &TokenBucket{
		capacity:    cfg.Capacity,
		capacityStr: strconv.Itoa(cfg.Capacity),
		interval:    cfg.RefillInterval,
		buckets:     newShardedMap[*bucket](),
	}

	if cfg.IdleEviction {
		idleAfter := cfg.IdleAfter
		if idleAfter == 0 {
			idleAfter = 2 * cfg.RefillInterval
		}
		sweep := cfg.SweepInterval
		if sweep == 0 {
			sweep = 5 * time.Minute
		}
		go tb.cleanup(idleAfter, sweep)
	}

	return tb
}

// Allow attempts to consume one token for key. Refill and consumption happen
// under the key's shard lock, so no two concurrent callers can both drain
// the same token. On rejection no token is consumed.
func (tb *TokenBucket) Allow(key string) (allowed bool, remaining int, resetTime time.Time) {
	now := time.Now()

	s := tb.buckets.getShard(key)
	s.mu.Lock()

	b, exists := s.items[key]
	if !exists {
		b = &bucket{
			tokens:     tb.capacity,
			lastRefill: now,
		}
		s.items[key] = b
	}

	// Greedy refill: grant whole tokens for elapsed intervals.
	if b.tokens >= tb.capacity {
		b.lastRefill = now
	} else if elapsed := now.Sub(b.lastRefill); elapsed >= tb.interval {
		grant := int(elapsed / tb.interval)
		b.tokens += grant
		if b.tokens >= tb.capacity {
			b.tokens = tb.capacity
			b.lastRefill = now
		} else {
			// Keep the partial interval so progress is not lost.
			b.lastRefill = b.lastRefill.Add(time.Duration(grant) * tb.interval)
		}
	}

	if b.tokens >= 1 {
		b.tokens--
		remaining = b.tokens
		resetTime = b.lastRefill.Add(tb.interval)
		s.mu.Unlock()
		return true, remaining, resetTime
	}

	resetTime = b.lastRefill.Add(tb.interval)
	s.mu.Unlock()
	return false, 0, resetTime
}

// Peek returns the current token count for key without consuming, and
// whether a bucket exists for the key.
func (tb *TokenBucket) Peek(key string) (tokens int, ok bool) {
	b, ok := tb.buckets.get(key)
	if !ok {
		return 0, false
	}
	s := tb.buckets.getShard(key)
	s.mu.Lock()
	tokens = b.tokens
	s.mu.Unlock()
	return tokens, true
}

// cleanup removes idle buckets periodically to bound registry growth.
func (tb *TokenBucket) cleanup(idleAfter, sweep time.Duration) {
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		tb.buckets.deleteFunc(func(_ string, b *bucket) bool {
			return now.Sub(b.lastRefill) > idleAfter
		})
	}
}

// ClientKey derives the rate-limit identity for a request: the first
// non-blank entry of X-Forwarded-For, else the direct peer address.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(xff) != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Limiter provides rate limiting middleware
type Limiter struct {
	tb    *TokenBucket
	keyFn func(*http.Request) string
}

// NewLimiter creates a new rate limiter
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		tb:    NewTokenBucket(cfg),
		keyFn: ClientKey,
	}
}

// SetKeyFunc sets a custom key function for rate limiting
func (l *Limiter) SetKeyFunc(fn func(*http.Request) string) {
	l.keyFn = fn
}

// Bucket exposes the underlying token bucket (used by tests and diagnostics).
func (l *Limiter) Bucket() *TokenBucket {
	return l.tb
}

// Middleware creates the rate limiting stage. Rejections short-circuit with
// 429 and the fixed refusal body.
func (l *Limiter) Middleware() middleware.Middleware {
	capacityStr := l.tb.capacityStr
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.keyFn(r)

			allowed, remaining, resetTime := l.tb.Allow(key)

			w.Header().Set("X-RateLimit-Limit", capacityStr)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(resetTime).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				errors.ErrTooManyRequests.WriteText(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
