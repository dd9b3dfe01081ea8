package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the rate limiter middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit (tokens added per second).
	RequestsPerSecond float64
	// Burst is the maximum number of requests allowed in a burst.
	Burst int
	// KeyFunc buckets requests. Defaults to WorkspaceClientKey.
	KeyFunc func(*http.Request) string
	// IdleTTL evicts buckets not used for this long. Defaults to 10 minutes.
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter returns an HTTP middleware that enforces a per-key token-bucket
// rate limit. Rejected requests get 429 with a Retry-After header.
//
// A zero RequestsPerSecond disables limiting.
func RateLimiter(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = WorkspaceClientKey
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	var (
		clients   sync.Map // key → *clientLimiter
		lastSweep atomic.Int64
	)

	// Idle buckets are swept lazily on the request path.
	sweep := func(now time.Time) {
		prev := lastSweep.Load()
		if now.UnixNano()-prev < int64(cfg.IdleTTL/2) || !lastSweep.CompareAndSwap(prev, now.UnixNano()) {
			return
		}
		clients.Range(func(key, value any) bool {
			if now.UnixNano()-value.(*clientLimiter).lastSeen.Load() > int64(cfg.IdleTTL) {
				clients.Delete(key)
			}
			return true
		})
	}

	getLimiter := func(key string, now time.Time) *rate.Limiter {
		v, ok := clients.Load(key)
		if !ok {
			cl := &clientLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			v, _ = clients.LoadOrStore(key, cl)
		}
		cl := v.(*clientLimiter)
		cl.lastSeen.Store(now.UnixNano())
		return cl.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			sweep(now)
			limiter := getLimiter(cfg.KeyFunc(r), now)

			reservation := limiter.ReserveN(now, 1)
			if !reservation.OK() {
				writeTooManyRequests(w, 0)
				return
			}
			if delay := reservation.DelayFrom(now); delay > 0 {
				reservation.CancelAt(now)
				writeTooManyRequests(w, int(delay.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.TokensAt(now))))
			next.ServeHTTP(w, r)
		})
	}
}

// WorkspaceClientKey buckets by workspace route parameter and client IP, so
// one noisy workspace cannot starve another behind the same proxy.
func WorkspaceClientKey(r *http.Request) string {
	return chi.URLParam(r, "workspaceID") + "|" + clientIP(r)
}

// clientIP extracts the client IP address from the request, stripping the port.
// Only RemoteAddr is trusted; X-Forwarded-For is ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    "RATE_LIMITED",
		"message": "rate limit exceeded",
	})
}
