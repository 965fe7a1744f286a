package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/database"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"github.com/taskdeck/taskdeck-api/internal/request"
	"github.com/taskdeck/taskdeck-api/internal/services/session"
	"go.uber.org/zap"
)

// SessionToken extracts the identity token from the session cookie, falling
// back to an Authorization bearer header for non-browser clients.
func SessionToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// Auth resolves the caller's identity from the session before anything else
// in the pipeline runs. Absent or invalid sessions terminate with 401. On
// success the session cookie's lifetime is refreshed and the user is attached
// to the request context.
func Auth(cfg *config.Config, users database.UserRepositoryInterface, verifier *session.Verifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r, cfg.SessionCookieName)
			if token == "" {
				respondAuthError(w, "Missing session")
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, token)
			if err != nil {
				log.Debug("session_verification_failed",
					zap.String("error", logger.SanitizeError(err)),
				)
				respondAuthError(w, "Invalid or expired session")
				return
			}

			user, err := users.GetByProviderID(ctx, claims.Sub)
			if err != nil {
				if errors.Is(err, database.ErrNotFound) {
					user = &models.User{
						ID:         uuid.New(),
						Email:      claims.Email,
						ProviderID: &claims.Sub,
					}
					if claims.Name != "" {
						name := claims.Name
						user.Name = &name
					}
					if err := users.Create(ctx, user); err != nil {
						log.Error("failed_to_create_user",
							zap.String("error", logger.SanitizeError(err)),
						)
						respondError(w, http.StatusInternalServerError, "Failed to create user")
						return
					}
				} else {
					log.Error("user_lookup_failed",
						zap.String("error", logger.SanitizeError(err)),
					)
					respondError(w, http.StatusInternalServerError, "Database error")
					return
				}
			} else if user.Email != claims.Email && claims.Email != "" {
				user.Email = claims.Email
				if err := users.Update(ctx, user); err != nil {
					log.Warn("failed_to_refresh_user_profile",
						zap.String("error", logger.SanitizeError(err)),
					)
				}
			}

			RefreshSessionCookie(w, cfg, token)

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

// RefreshSessionCookie re-sets the session cookie so its lifetime slides
// forward on every authenticated request.
func RefreshSessionCookie(w http.ResponseWriter, cfg *config.Config, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.EnableHSTS,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg *config.Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.EnableHSTS,
		SameSite: http.SameSiteLaxMode,
	})
}

func respondAuthError(w http.ResponseWriter, message string) {
	respondError(w, http.StatusUnauthorized, message)
}
