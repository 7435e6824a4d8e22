package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the rate limiter middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit (tokens added per second).
	RequestsPerSecond float64
	// Burst is the maximum number of requests allowed in a burst.
	Burst int
	// IdleTTL evicts limiters of clients silent for this long (default 10m).
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet is the per-client limiter table.
type limiterSet struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func (s *limiterSet) get(ip string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (s *limiterSet) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip, cl := range s.clients {
		if now.Sub(cl.lastSeen) > s.cfg.IdleTTL {
			delete(s.clients, ip)
		}
	}
}

// RateLimiter returns a per-client token-bucket middleware. Requests over the
// limit get 429 with Retry-After. Idle clients are evicted until ctx is done.
func RateLimiter(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	set := &limiterSet{cfg: cfg, clients: make(map[string]*clientLimiter)}

	go func() {
		ticker := time.NewTicker(cfg.IdleTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				set.evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			limiter := set.get(clientIP(r), now)

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

// clientIP uses RemoteAddr only; X-Forwarded-For is client-controlled.
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
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    http.StatusTooManyRequests,
		"message": "rate limit exceeded",
	})
}
