package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/services/session"
	"go.uber.org/zap"
)

func newTestSessionClient(t *testing.T) *session.Client {
	t.Helper()
	return session.NewClient(&config.Config{
		IdentityIssuer:   "https://idp.example.com",
		IdentityClientID: "taskdeck",
		BaseURL:          "https://taskdeck.example.com",
	})
}

func queryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parsing %q: %v", rawURL, err)
	}
	return u.Query().Get(key)
}

func TestLogout_RedirectsAndClearsSession(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{SessionCookieName: "taskdeck_session"}
	handler := NewAuthHandler(nil, cfg, zap.NewNop())

	router := mux.NewRouter()
	handler.RegisterRoutes(router.PathPrefix("/api/auth").Subrouter())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: cfg.SessionCookieName, Value: "token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want %q", loc, "/")
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == cfg.SessionCookieName {
			cleared = true
			if c.Value != "" || c.MaxAge >= 0 {
				t.Errorf("session cookie not expired: value=%q max-age=%d", c.Value, c.MaxAge)
			}
		}
	}
	if !cleared {
		t.Error("no expiring session cookie set")
	}
}

func TestLogin_SetsStateCookieAndRedirects(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{SessionCookieName: "taskdeck_session"}
	handler := NewAuthHandler(newTestSessionClient(t), cfg, zap.NewNop())

	router := mux.NewRouter()
	handler.RegisterRoutes(router.PathPrefix("/api/auth").Subrouter())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}

	var state string
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			state = c.Value
			if c.MaxAge != 300 || c.Path != "/api/auth" || !c.HttpOnly {
				t.Errorf("state cookie attributes = max-age %d path %q httponly %t", c.MaxAge, c.Path, c.HttpOnly)
			}
		}
	}
	if state == "" {
		t.Fatal("no state cookie set")
	}

	authURL := rec.Header().Get("Location")
	if authURL == "" {
		t.Fatal("no redirect location")
	}
	if got := queryParam(t, authURL, "state"); got != state {
		t.Errorf("redirect state = %q, cookie state = %q", got, state)
	}
}
