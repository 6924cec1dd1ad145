package middleware

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeaders adds OWASP-recommended security headers to all responses
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitConfig holds configuration for the rate limiter
type RateLimitConfig struct {
	RequestsPerMin int      // Maximum requests allowed per minute
	BurstSize      int      // Maximum burst of requests allowed
	TrustedProxies []string // Peers whose X-Forwarded-For is believed
	// OnLimit writes the rejection. Defaults to a plain 429.
	OnLimit func(w http.ResponseWriter, r *http.Request)
}

// staleAfter is how long an idle client's bucket is retained.
const staleAfter = 3 * time.Minute

// RateLimit implements token bucket rate limiting per client IP. A cleanup
// goroutine evicts idle clients until ctx is cancelled.
//
// X-Forwarded-For and X-Real-IP are honoured only when the direct peer is
// listed in TrustedProxies; otherwise the TCP peer address is used.
func RateLimit(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				for ip, c := range clients {
					if time.Since(c.lastSeen) > staleAfter {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	onLimit := cfg.OnLimit
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		}
	}
	perSecond := rate.Limit(float64(cfg.RequestsPerMin) / 60.0)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, cfg.TrustedProxies)

			mu.Lock()
			c, ok := clients[ip]
			if !ok {
				c = &client{limiter: rate.NewLimiter(perSecond, cfg.BurstSize)}
				clients[ip] = c
			}
			c.lastSeen = time.Now()
			allowed := c.limiter.Allow()
			mu.Unlock()

			if !allowed {
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from the request.
func clientIP(r *http.Request, trustedProxies []string) string {
	directIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(directIP); err == nil {
		directIP = host
	}

	if !slices.Contains(trustedProxies, directIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return directIP
}
