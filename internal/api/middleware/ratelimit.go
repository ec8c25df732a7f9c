package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLimitRequests = 100
	defaultLimitWindow   = time.Minute
)

// RateLimiter tracks request timestamps per caller over a sliding
// window. Callers are keyed by authenticated user when a token is
// present, otherwise by client IP, so one noisy SPA session cannot
// starve the rest of an office behind the same NAT.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	callers map[string][]time.Time
}

func NewRateLimiter(requests int, windowSeconds int) *RateLimiter {
	rl := &RateLimiter{
		limit:   requests,
		window:  time.Duration(windowSeconds) * time.Second,
		callers: make(map[string][]time.Time),
	}
	if rl.limit <= 0 {
		rl.limit = defaultLimitRequests
	}
	if rl.window <= 0 {
		rl.window = defaultLimitWindow
	}
	go rl.sweep()
	return rl
}

// sweep drops callers that have gone quiet so the map does not grow
// with every IP that ever hit the API.
func (rl *RateLimiter) sweep() {
	for range time.Tick(time.Minute) {
		rl.mu.Lock()
		cutoff := time.Now().Add(-2 * rl.window)
		for key, stamps := range rl.callers {
			if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
				delete(rl.callers, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow records a request for the caller and reports whether it fits in
// the window, along with the remaining budget and when the window resets.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	stamps := rl.callers[key]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(windowStart) {
			live = append(live, ts)
		}
	}

	if len(live) >= rl.limit {
		rl.callers[key] = live
		return false, 0, live[0].Add(rl.window)
	}

	live = append(live, now)
	rl.callers[key] = live
	return true, rl.limit - len(live), now.Add(rl.window)
}

func (rl *RateLimiter) serve(next http.Handler, key func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, reset := rl.Allow(key(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(reset).Seconds())+1))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimit limits by client IP. Applied globally, in front of auth.
func RateLimit(requests int, windowSeconds int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(requests, windowSeconds)
	return func(next http.Handler) http.Handler {
		return limiter.serve(next, clientIP)
	}
}

// RateLimitByUser limits by authenticated user, falling back to client
// IP for anonymous requests. Must run after Auth to see the claims.
func RateLimitByUser(requests int, windowSeconds int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(requests, windowSeconds)
	return func(next http.Handler) http.Handler {
		return limiter.serve(next, func(r *http.Request) string {
			if userID := GetUserID(r.Context()); userID != uuid.Nil {
				return "user:" + userID.String()
			}
			return clientIP(r)
		})
	}
}

// clientIP resolves the originating address, trusting proxy headers
// when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
