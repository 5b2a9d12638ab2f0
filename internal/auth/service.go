package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.jetify.com/typeid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

const apiKeyPrefix = "key"

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	verifier Verifier
	logger   *slog.Logger
	now      func() time.Time
	cost     int
}

// NewService constructs a new Service.
func NewService(repo Repository, verifier Verifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		verifier: verifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		cost:     bcrypt.DefaultCost,
	}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetHashCost changes the bcrypt cost used for new keys.
func (s *Service) SetHashCost(cost int) {
	if cost >= bcrypt.MinCost {
		s.cost = cost
	}
}

// Authenticate resolves an identity-provider bearer token into the caller.
func (s *Service) Authenticate(ctx context.Context, token string) (shared.Account, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return shared.Account{}, err
	}
	user, err := s.repo.UpsertUser(ctx, identity, s.now())
	if err != nil {
		return shared.Account{}, err
	}
	return user.Account(), nil
}

// AuthenticateKey resolves an API key of the form "<id>.<secret>".
func (s *Service) AuthenticateKey(ctx context.Context, token string) (shared.Account, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || secret == "" {
		return shared.Account{}, ErrInvalidAPIKey
	}
	tid, err := typeid.Parse(id)
	if err != nil || tid.Prefix() != apiKeyPrefix {
		return shared.Account{}, ErrInvalidAPIKey
	}
	key, err := s.repo.GetAPIKey(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Account{}, ErrInvalidAPIKey
		}
		return shared.Account{}, err
	}
	if key.RevokedAt != nil {
		return shared.Account{}, ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword(key.SecretHash, []byte(secret)); err != nil {
		return shared.Account{}, ErrInvalidAPIKey
	}
	user, err := s.repo.GetUser(ctx, key.UserID)
	if err != nil {
		return shared.Account{}, err
	}
	if err := s.repo.TouchAPIKey(ctx, key.ID, s.now()); err != nil {
		s.logger.Warn("touch api key", slog.String("key_id", key.ID), slog.Any("error", err))
	}
	acct := user.Account()
	acct.OrganizationID = key.OrganizationID
	return acct, nil
}

// IssueKey creates an API key for the caller's organization. The token is
// only ever returned here.
func (s *Service) IssueKey(ctx context.Context, acct shared.Account, input CreateKeyInput) (IssuedKey, error) {
	if !acct.HasOrganization() {
		return IssuedKey{}, shared.ErrNoOrganization
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.ValidateStruct(input); err != nil {
		return IssuedKey{}, err
	}
	tid, err := typeid.Generate(apiKeyPrefix)
	if err != nil {
		return IssuedKey{}, fmt.Errorf("generate key id: %w", err)
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return IssuedKey{}, fmt.Errorf("generate key secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return IssuedKey{}, fmt.Errorf("hash key secret: %w", err)
	}
	key := APIKey{
		ID:             tid.String(),
		OrganizationID: acct.OrganizationID,
		UserID:         acct.UserID,
		Name:           input.Name,
		SecretHash:     hash,
		CreatedAt:      s.now(),
	}
	if err := s.repo.InsertAPIKey(ctx, key); err != nil {
		return IssuedKey{}, err
	}
	return IssuedKey{APIKey: key, Token: key.ID + "." + secret}, nil
}

// ListKeys returns the organization's keys without secrets.
func (s *Service) ListKeys(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	return s.repo.ListAPIKeys(ctx, orgID)
}

// RevokeKey disables a key. Revoking twice is a no-op.
func (s *Service) RevokeKey(ctx context.Context, orgID uuid.UUID, id string) error {
	return s.repo.RevokeAPIKey(ctx, orgID, id, s.now())
}

// Me returns the stored user behind the account.
func (s *Service) Me(ctx context.Context, acct shared.Account) (User, error) {
	return s.repo.GetUser(ctx, acct.UserID)
}
