package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/alecgard/kyosor/internal/auth"
)

// KeyFunc derives the bucket key for a request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests by remote address. Run chi's RealIP middleware
// first when serving behind a proxy.
func ByClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ByHandle keys requests by the authenticated identity, falling back to the
// client address for anonymous requests.
func ByHandle(r *http.Request) string {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return "handle:" + p.Handle
	}
	return "ip:" + ByClientIP(r)
}

// Middleware enforces limiter per key. Rate-limit headers are always set:
//
//	X-RateLimit-Limit     maximum requests allowed in the window
//	X-RateLimit-Remaining tokens remaining in the current window
//	X-RateLimit-Reset     Unix timestamp when the bucket is full again
//
// When the limit is exceeded it responds 429 with a JSON error body.
func Middleware(limiter *Limiter, key KeyFunc, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !limiter.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)

			limit, remaining, resetAt := limiter.Status(k)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !limiter.Allow(k) {
				for _, fn := range onReject {
					fn()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{
						"code":    "rate_limited",
						"message": "Rate limit exceeded. Try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
