package request

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/taskdeck/taskdeck-api/internal/models"
)

type contextKey string

const (
	userContextKey  contextKey = "user"
	nonceContextKey contextKey = "csp_nonce"
)

// ClientIP extracts the client IP from the request. Forwarding headers
// (X-Forwarded-For, X-Real-IP) are client-controlled; they are honored only
// when trustProxy is set, otherwise the connection's RemoteAddr wins.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				return strings.TrimSpace(parts[0])
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// WithUser returns a context with the resolved user attached.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user from the request context, or nil if
// missing or of the wrong type.
func UserFromContext(r *http.Request) *models.User {
	u, _ := r.Context().Value(userContextKey).(*models.User)
	return u
}

// WithNonce returns a context carrying the per-request CSP nonce.
func WithNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, nonceContextKey, nonce)
}

// NonceFromContext returns the per-request CSP nonce, empty if absent.
func NonceFromContext(ctx context.Context) string {
	n, _ := ctx.Value(nonceContextKey).(string)
	return n
}
