package middleware

import (
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORS builds the cross-origin middleware from the configured allow-list.
//
// Origins are matched exactly. The literal origin "null" (file:// pages and
// sandboxed frames) is allowed so local tooling can exercise the API; any
// other unlisted origin receives no Access-Control-Allow-Origin header at
// all. Allowed requests echo the exact origin with credentials enabled, and
// preflights are answered with 204 plus a 24 hour cache before auth or rate
// limiting run.
func CORS(allowedOrigins []string, log *zap.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins)+1)
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	allowed["null"] = true

	log.Info("cors_configured", zap.Strings("allowed_origins", allowedOrigins))

	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return allowed[origin]
		},
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           86400,
	})

	return c.Handler
}
