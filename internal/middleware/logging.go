package middleware

import (
	"net/http"
	"time"

	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/request"
	"go.uber.org/zap"
)

// Logging logs one event per request with method, path, status and duration.
func Logging(log *zap.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			log.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", logger.SanitizePath(r.URL.Path)),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("duration_ms", duration.Milliseconds()),
				zap.String("ip", request.ClientIP(r, trustProxy)),
			)
		})
	}
}

// Audit logs security-relevant outcomes: failed auth and rate limit denials.
func Audit(log *zap.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			switch wrapped.statusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				log.Warn("security_event",
					zap.Int("status_code", wrapped.statusCode),
					zap.String("method", r.Method),
					zap.String("path", logger.SanitizePath(r.URL.Path)),
					zap.String("ip", request.ClientIP(r, trustProxy)),
				)
			case http.StatusTooManyRequests:
				log.Warn("rate_limit_violation",
					zap.String("method", r.Method),
					zap.String("path", logger.SanitizePath(r.URL.Path)),
					zap.String("ip", request.ClientIP(r, trustProxy)),
				)
			}
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
