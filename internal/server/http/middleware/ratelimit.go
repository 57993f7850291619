// Package middleware provides HTTP middleware components for the changefeed server.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RateLimiter configuration constants.
const (
	DefaultMaxRequests = 120             // Max requests per window
	DefaultWindow      = 1 * time.Minute // Time window for rate limiting
	DefaultCleanup     = 5 * time.Minute // Cleanup interval for stale buckets
)

// ErrCodeRateLimited is the client-facing code for rejected requests.
const ErrCodeRateLimited = "RATE_LIMITED"

// RateLimiter implements a sliding window rate limiter keyed by client.
// Pollers hitting /changes in a tight loop are the main customer.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	trustProxy  bool
	buckets     map[string]*bucket
	mu          sync.Mutex
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// bucket tracks request timestamps for a single key.
type bucket struct {
	timestamps []time.Time
	lastAccess time.Time
}

// RateLimiterOption is a functional option for configuring RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithMaxRequests sets the maximum number of requests per window.
func WithMaxRequests(n int) RateLimiterOption {
	return func(r *RateLimiter) {
		if n > 0 {
			r.maxRequests = n
		}
	}
}

// WithWindow sets the time window for rate limiting.
func WithWindow(d time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithTrustProxy makes the limiter key on X-Forwarded-For / X-Real-IP.
// Enable only behind a trusted reverse proxy; the headers are otherwise spoofable.
func WithTrustProxy(trust bool) RateLimiterOption {
	return func(r *RateLimiter) {
		r.trustProxy = trust
	}
}

// NewRateLimiter creates a new RateLimiter with the given options.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		maxRequests: DefaultMaxRequests,
		window:      DefaultWindow,
		buckets:     make(map[string]*bucket),
		cleanupDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	go r.cleanupLoop()

	return r
}

// Limit returns the configured requests per window.
func (r *RateLimiter) Limit() int {
	return r.maxRequests
}

// Allow records a request for key and reports whether it fits in the window.
// The second return value is the number of requests left after this one.
func (r *RateLimiter) Allow(key string) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	b, exists := r.buckets[key]
	if !exists {
		b = &bucket{timestamps: make([]time.Time, 0, 8)}
		r.buckets[key] = b
	}
	b.prune(now.Add(-r.window))
	b.lastAccess = now

	if len(b.timestamps) >= r.maxRequests {
		return false, 0
	}
	b.timestamps = append(b.timestamps, now)
	return true, r.maxRequests - len(b.timestamps)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (r *RateLimiter) Close() {
	r.closeOnce.Do(func() {
		close(r.cleanupDone)
	})
}

// prune drops timestamps at or before cutoff, reusing the backing array.
func (b *bucket) prune(cutoff time.Time) {
	kept := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.timestamps = kept
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(DefaultCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-r.cleanupDone:
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

// cleanup removes buckets that haven't been accessed recently.
func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window * 2)
	for key, b := range r.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}

// ClientKey extracts the client IP used as the rate limit key.
func (r *RateLimiter) ClientKey(req *http.Request) string {
	if r.trustProxy {
		// X-Forwarded-For is "client, proxy1, proxy2"; the first entry is the client.
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := req.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// RateLimitMiddleware returns an HTTP middleware that applies rate limiting.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiter.ClientKey(r)

			allowed, remaining := limiter.Allow(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.maxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				log.Warn().
					Str("remote", key).
					Str("path", r.URL.Path).
					Msg("rate limit exceeded")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded",
					"code":  ErrCodeRateLimited,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
