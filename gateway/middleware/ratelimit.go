package middleware

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sktvault/observability/metrics"
)

const visitorIdleTimeout = 5 * time.Minute

// RateLimit bounds requests per client for one route group.
type RateLimit struct {
	RatePerSecond float64
	Burst         int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies token buckets per (group, remote IP).
type RateLimiter struct {
	logger   *slog.Logger
	limits   map[string]RateLimit
	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
	clockNow func() time.Time
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

func (r *RateLimiter) Middleware(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limit, ok := r.limits[group]
			if !ok || limit.RatePerSecond <= 0 {
				next.ServeHTTP(w, req)
				return
			}
			id := clientID(req)
			if !r.obtainLimiter(group+"|"+id, limit).Allow() {
				metrics.Gateway().Reject(group, "rate_limit")
				r.logger.Debug("rate limited", "group", group, "client", id)
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) obtainLimiter(key string, cfg RateLimit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	if now.Sub(r.lastGC) > visitorIdleTimeout {
		for k, v := range r.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTimeout {
				delete(r.visitors, k)
			}
		}
		r.lastGC = now
	}
	if v, ok := r.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	v := &visitor{limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst), lastSeen: now}
	r.visitors[key] = v
	return v.limiter
}

// clientID keys buckets on the connection's remote address. Request headers
// are not consulted: they are unauthenticated at this point and a client
// could rotate them or impersonate another caller.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
