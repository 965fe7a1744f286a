package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/middleware"
	"github.com/taskdeck/taskdeck-api/internal/request"
	"github.com/taskdeck/taskdeck-api/internal/services/session"
	"go.uber.org/zap"
)

const stateCookieName = "taskdeck_oauth_state"

// AuthHandler handles the login flow against the external identity provider
// and session lifecycle endpoints.
type AuthHandler struct {
	client *session.Client
	cfg    *config.Config
	log    *zap.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(client *session.Client, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{client: client, cfg: cfg, log: log}
}

// RegisterRoutes registers the unauthenticated auth routes. The router should
// already carry the /api/auth prefix plus the auth rate limit middleware.
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/login", h.Login).Methods("GET")
	r.HandleFunc("/callback", h.Callback).Methods("GET")
	r.HandleFunc("/logout", h.Logout).Methods("POST")
}

// RegisterProtectedRoutes registers routes that require an established
// session.
func (h *AuthHandler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.Me).Methods("GET")
}

// Login redirects the browser to the identity provider's authorization URL.
// A random state value is stored in a short-lived cookie and checked on
// callback.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		h.log.Error("failed_to_generate_oauth_state", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to start login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   h.cfg.EnableHSTS,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.client.AuthCodeURL(state), http.StatusFound)
}

// Callback exchanges the authorization code for tokens and establishes the
// session cookie.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != q.Get("state") {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid login state")
		return
	}

	// The state cookie is single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := q.Get("code")
	if code == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Missing authorization code")
		return
	}

	token, err := h.client.ExchangeCode(r.Context(), code)
	if err != nil {
		h.log.Warn("oauth_code_exchange_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Login failed")
		return
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		h.log.Warn("oauth_response_missing_id_token")
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Login failed")
		return
	}

	middleware.RefreshSessionCookie(w, h.cfg, idToken)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session cookie. The identity provider's own session is
// not touched.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w, h.cfg)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Me returns the authenticated caller's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
