package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Identity is what the external identity provider vouches for.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

// User maps an identity subject to a local account.
type User struct {
	ID             uuid.UUID  `json:"id"`
	Subject        string     `json:"subject"`
	Email          string     `json:"email"`
	OrganizationID *uuid.UUID `json:"organizationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Account converts the user into the request-scoped caller.
func (u User) Account() shared.Account {
	acct := shared.Account{UserID: u.ID, Subject: u.Subject, Email: u.Email}
	if u.OrganizationID != nil {
		acct.OrganizationID = *u.OrganizationID
	}
	return acct
}

// APIKey grants machine access to one organization.
type APIKey struct {
	ID             string     `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	UserID         uuid.UUID  `json:"userId"`
	Name           string     `json:"name"`
	SecretHash     []byte     `json:"-"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CreateKeyInput names a new API key.
type CreateKeyInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

// IssuedKey is returned once, when the secret is still known.
type IssuedKey struct {
	APIKey
	Token string `json:"token"`
}

var (
	// ErrInvalidToken is returned for bearer tokens the provider rejects.
	ErrInvalidToken = fmt.Errorf("invalid token: %w", shared.ErrUnauthorized)
	// ErrInvalidAPIKey is returned for unknown, revoked or mismatched keys.
	ErrInvalidAPIKey = fmt.Errorf("invalid api key: %w", shared.ErrUnauthorized)
	// ErrUserNotFound is returned when no user maps to a subject.
	ErrUserNotFound = fmt.Errorf("user not found: %w", shared.ErrNotFound)
	// ErrAPIKeyNotFound is returned when an API key does not exist for the organization.
	ErrAPIKeyNotFound = fmt.Errorf("api key not found: %w", shared.ErrNotFound)
)
