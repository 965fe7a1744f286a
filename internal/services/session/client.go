package session

import (
	"context"

	"github.com/taskdeck/taskdeck-api/internal/config"
	"golang.org/x/oauth2"
)

// Client wraps the oauth2 code-exchange flow against the identity provider.
// The provider remains external; this system only exchanges the code for a
// token and sets the session cookie.
type Client struct {
	config *oauth2.Config
}

// NewClient creates an oauth2 client from the application config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.IdentityClientID,
			ClientSecret: cfg.IdentityClientSecret,
			RedirectURL:  cfg.BaseURL + "/api/auth/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.IdentityIssuer + "/oauth2/authorize",
				TokenURL: cfg.IdentityIssuer + "/oauth2/token",
			},
		},
	}
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.config.Exchange(ctx, code)
}

// AuthCodeURL returns the provider's authorization URL for the given state.
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}
