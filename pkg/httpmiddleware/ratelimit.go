package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the default number of requests allowed per window.
	Max int
	// Window is the duration of each sliding window.
	Window time.Duration
	// Routes sets a separate budget for matched route patterns, such as
	// "POST /api/orders". Requests to these routes do not consume the
	// default budget. Requires Find.
	Routes map[string]int
	// Find resolves the route pattern of a request.
	Find RouteFinder
	// KeyFunc extracts the client key from a request.
	// If nil, ClientKey is used.
	KeyFunc func(*http.Request) string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// RetryAfter is the whole number of seconds until the window resets.
func (d Decision) RetryAfter(now time.Time) int {
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}

// bucket counts requests across two adjacent windows.
type bucket struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

// Limiter enforces per-client sliding window budgets. The effective count
// weights the previous window by its overlap with the sliding window.
type Limiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter creates a Limiter with defaults applied.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

// budget returns the bucket key suffix and the limit for r.
func (l *Limiter) budget(r *http.Request) (string, int) {
	if len(l.cfg.Routes) == 0 || l.cfg.Find == nil {
		return "", l.cfg.Max
	}
	route := l.cfg.Find(r)
	if limit, ok := l.cfg.Routes[route]; ok {
		return "|" + route, limit
	}
	return "", l.cfg.Max
}

// Allow records one request for key against limit.
func (l *Limiter) Allow(key string, limit int, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.cfg.Window
	b, ok := l.buckets[key]
	switch {
	case !ok:
		b = &bucket{currStart: now.Truncate(window)}
		l.buckets[key] = b
	case now.Sub(b.currStart) >= 2*window:
		*b = bucket{currStart: now.Truncate(window)}
	case now.Sub(b.currStart) >= window:
		b.prevCount, b.currCount = b.currCount, 0
		b.currStart = b.currStart.Add(window)
	}

	overlap := 1 - now.Sub(b.currStart).Seconds()/window.Seconds()
	effective := b.prevCount*max(overlap, 0) + b.currCount

	d := Decision{Limit: limit, ResetAt: b.currStart.Add(window)}
	if effective >= float64(limit) {
		return d
	}
	b.currCount++
	d.Allowed = true
	d.Remaining = max(int(float64(limit)-effective-1), 0)
	return d
}

// evict drops buckets idle for two full windows.
func (l *Limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.currStart) >= 2*l.cfg.Window {
			delete(l.buckets, key)
		}
	}
}

// Run evicts idle buckets every two windows until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// Middleware rejects requests over budget with 429 and a JSON body. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			suffix, limit := l.budget(r)
			now := l.cfg.Now()
			d := l.Allow(l.cfg.KeyFunc(r)+suffix, limit, now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Retry-After", strconv.Itoa(d.RetryAfter(now)))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
}

// RateLimit returns the limiter middleware without background eviction.
func RateLimit(cfg RateLimitConfig) Middleware {
	return NewLimiter(cfg).Middleware()
}

// RateLimitWithCleanup is like RateLimit but evicts idle buckets in the
// background until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg)
	go l.Run(ctx)
	return l.Middleware()
}

// ClientKey limits authenticated callers per API key and anonymous callers
// per client IP. Keys are hashed so raw credentials never sit in the limiter.
func ClientKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + clientIP(r)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
