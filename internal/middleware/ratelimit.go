package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"github.com/taskdeck/taskdeck-api/internal/ratelimit"
	"github.com/taskdeck/taskdeck-api/internal/request"
	"go.uber.org/zap"
)

// Limiter is the decision surface the rate limit middleware consumes.
type Limiter interface {
	Check(ctx context.Context, kind ratelimit.Kind, key string) models.RateLimitResult
}

// RateLimit enforces the per-identity sliding window for task endpoints,
// selecting the read limiter for GET/HEAD and the write limiter for mutating
// methods. It must run after Auth so the limiter key can combine owner and
// client IP. Denials respond 429 with Retry-After and X-RateLimit-* headers.
func RateLimit(limiter Limiter, trustProxy bool, log *zap.Logger) func(http.Handler) http.Handler {
	return rateLimitWith(limiter, trustProxy, log, func(r *http.Request) ratelimit.Kind {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			return ratelimit.KindRead
		default:
			return ratelimit.KindWrite
		}
	})
}

// RateLimitAuth enforces the stricter auth limiter on session endpoints.
func RateLimitAuth(limiter Limiter, trustProxy bool, log *zap.Logger) func(http.Handler) http.Handler {
	return rateLimitWith(limiter, trustProxy, log, func(*http.Request) ratelimit.Kind {
		return ratelimit.KindAuth
	})
}

func rateLimitWith(limiter Limiter, trustProxy bool, log *zap.Logger, kindFor func(*http.Request) ratelimit.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := request.ClientIP(r, trustProxy)
			ownerID := ""
			if user := request.UserFromContext(r); user != nil {
				ownerID = user.ID.String()
			}
			key := ratelimit.Key(ownerID, ip)
			kind := kindFor(r)

			result := limiter.Check(r.Context(), kind, key)

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

			if !result.Allowed {
				retryAfter := result.RetryAfterSeconds()
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))

				log.Warn("rate_limit_denied",
					zap.String("kind", string(kind)),
					zap.String("identifier", logger.SanitizeString(key, logger.MaxOwnerIDLength)),
					zap.String("method", r.Method),
					zap.String("path", logger.SanitizePath(r.URL.Path)),
					zap.String("user_agent", logger.SanitizeString(r.UserAgent(), logger.MaxGeneralStringLength)),
				)

				respondRateLimited(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(w http.ResponseWriter, retryAfter int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    false,
		"error":      "Rate limit exceeded",
		"message":    "Too many requests, slow down",
		"retryAfter": retryAfter,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
