package session

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/taskdeck/taskdeck-api/internal/models"
)

// Verifier validates identity-provider tokens carried by session cookies.
type Verifier struct {
	jwksManager *JWKSManager
	issuer      string
	jwksURL     string
}

// NewVerifier creates a verifier bound to one issuer and its JWKS URL.
func NewVerifier(jwksManager *JWKSManager, issuer, jwksURL string) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		issuer:      issuer,
		jwksURL:     jwksURL,
	}
}

// Verify checks signature, expiry and issuer of the token and extracts the
// session claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.SessionClaims, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString), jwt.WithKeySet(keys), jwt.WithValidate(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	if token.Issuer() != v.issuer {
		return nil, fmt.Errorf("token issuer mismatch: expected %s, got %s", v.issuer, token.Issuer())
	}

	claims := &models.SessionClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Aud = aud[0]
	}
	if !token.Expiration().IsZero() {
		claims.Exp = token.Expiration().Unix()
	}
	if !token.IssuedAt().IsZero() {
		claims.Iat = token.IssuedAt().Unix()
	}
	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	if name, ok := token.Get("name"); ok {
		if s, ok := name.(string); ok {
			claims.Name = s
		}
	}

	return claims, nil
}
