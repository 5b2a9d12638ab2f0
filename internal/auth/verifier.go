package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Verifier resolves a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// TokenInfoVerifier asks an HTTP token-info endpoint about each token.
// Concurrent checks of the same token share one upstream call.
type TokenInfoVerifier struct {
	url    string
	client *http.Client
	group  singleflight.Group
}

// NewTokenInfoVerifier constructs a verifier for the given endpoint.
func NewTokenInfoVerifier(url string, client *http.Client) *TokenInfoVerifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &TokenInfoVerifier{url: url, client: client}
}

// Verify implements Verifier.
func (v *TokenInfoVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	if v.url == "" {
		return Identity{}, fmt.Errorf("identity provider not configured: %w", shared.ErrExternalService)
	}
	res, err, _ := v.group.Do(token, func() (any, error) {
		return v.fetch(ctx, token)
	})
	if err != nil {
		return Identity{}, err
	}
	return res.(Identity), nil
}

func (v *TokenInfoVerifier) fetch(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("token info: %v: %w", err, shared.ErrExternalService)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Identity{}, ErrInvalidToken
	case resp.StatusCode >= 400:
		return Identity{}, fmt.Errorf("token info returned status %d: %w", resp.StatusCode, shared.ErrExternalService)
	}
	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return Identity{}, fmt.Errorf("decode token info: %v: %w", err, shared.ErrExternalService)
	}
	if identity.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	return identity, nil
}
