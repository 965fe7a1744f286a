package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/taskdeck/taskdeck-api/internal/logger"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body sent for middleware-level failures.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Recover catches handler panics, logs full detail server-side and responds
// with a generic 500. Nothing internal reaches the client.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic_recovered",
						zap.Any("error", err),
						zap.String("path", logger.SanitizePath(r.URL.Path)),
						zap.String("method", r.Method),
					)
					respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// respondError writes the shared middleware error envelope.
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Success:   false,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
