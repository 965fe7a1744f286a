package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKSManager fetches and caches the identity provider's key set.
type JWKSManager struct {
	mu      sync.RWMutex
	keys    jwk.Set
	expires time.Time
	ttl     time.Duration
}

// NewJWKSManager creates a JWKS manager with a 1 hour cache.
func NewJWKSManager() *JWKSManager {
	return &JWKSManager{ttl: 1 * time.Hour}
}

// GetJWKS returns the key set at jwksURL, fetching it when the cache is cold
// or expired.
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	m.mu.RLock()
	if m.keys != nil && time.Now().Before(m.expires) {
		keys := m.keys
		m.mu.RUnlock()
		return keys, nil
	}
	m.mu.RUnlock()

	keys, err := fetchJWKS(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	m.mu.Lock()
	m.keys = keys
	m.expires = time.Now().Add(m.ttl)
	m.mu.Unlock()

	return keys, nil
}

func fetchJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	return keys, nil
}
