// Package middleware provides net/http integration for the request gate:
// rate limiting, bearer validation, and correlation propagation as standard
// http.Handler wrappers.
package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	authcore "github.com/securepay/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the authenticated identity attached by Guard.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok
}

// Guard enforces the full pipeline: both rate windows, then bearer
// validation. On success the identity is attached to the request context and
// the correlation id is echoed in X-Request-ID.
func Guard(gate *authcore.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, _ := bearerToken(r.Header.Get("Authorization"))
			st, err := gate.Authorize(r.Context(), authcore.GateRequest{
				IP:            clientIP(r),
				Path:          r.URL.Path,
				Method:        r.Method,
				BearerToken:   token,
				CorrelationID: r.Header.Get("X-Request-ID"),
			})
			if err != nil {
				reject(w, err)
				return
			}

			writeRequestHeaders(w, st)
			ctx := context.WithValue(r.Context(), identityContextKey{}, st.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Throttle enforces only the rate windows. Credential routes use this: the
// caller is not authenticated yet, but volume control still applies.
func Throttle(gate *authcore.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			st, err := gate.Throttle(r.Context(), authcore.GateRequest{
				IP:            clientIP(r),
				Path:          r.URL.Path,
				Method:        r.Method,
				CorrelationID: r.Header.Get("X-Request-ID"),
			})
			if err != nil {
				reject(w, err)
				return
			}

			writeRequestHeaders(w, st)
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, err error) {
	var rle *authcore.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func writeRequestHeaders(w http.ResponseWriter, st *authcore.RequestState) {
	w.Header().Set("X-Request-ID", st.CorrelationID)
	if limit, ok := st.RateLimits["minute"]; ok {
		w.Header().Set("X-RateLimit-Limit-Minute", strconv.Itoa(limit))
	}
	if remaining, ok := st.RateRemaining["minute"]; ok {
		w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(remaining))
	}
	if limit, ok := st.RateLimits["hour"]; ok {
		w.Header().Set("X-RateLimit-Limit-Hour", strconv.Itoa(limit))
	}
	if remaining, ok := st.RateRemaining["hour"]; ok {
		w.Header().Set("X-RateLimit-Remaining-Hour", strconv.Itoa(remaining))
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
