package organizations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

var (
	ErrOrganizationNotFound = fmt.Errorf("organization not found: %w", shared.ErrNotFound)
	ErrOrganizationExists   = fmt.Errorf("organization already exists for account: %w", shared.ErrConflict)
)

var hundred = decimal.NewFromInt(100)

// Service implements organization management.
type Service struct {
	repo  Repository
	clock func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: func() time.Time { return time.Now().UTC() }}
}

// Create registers the organization owned by the account.
func (s *Service) Create(ctx context.Context, acct shared.Account, input CreateInput) (Organization, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Organization{}, err
	}
	if err := validateTaxRate(input.DefaultTaxRate); err != nil {
		return Organization{}, err
	}
	if _, err := s.repo.GetByOwner(ctx, acct.UserID); err == nil {
		return Organization{}, ErrOrganizationExists
	} else if !errors.Is(err, ErrOrganizationNotFound) {
		return Organization{}, err
	}
	prefix := strings.TrimSpace(input.InvoicePrefix)
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	now := s.clock()
	org := Organization{
		ID:                    uuid.New(),
		OwnerUserID:           acct.UserID,
		Name:                  strings.TrimSpace(input.Name),
		Currency:              strings.ToUpper(input.Currency),
		InvoicePrefix:         prefix,
		InvoiceNumberSequence: 1,
		DefaultTaxRate:        input.DefaultTaxRate,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		return Organization{}, err
	}
	return org, nil
}

// Get loads an organization.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Organization, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner resolves the organization owned by a user.
func (s *Service) GetByOwner(ctx context.Context, userID uuid.UUID) (Organization, error) {
	return s.repo.GetByOwner(ctx, userID)
}

// UpdateSettings applies a partial settings update.
func (s *Service) UpdateSettings(ctx context.Context, id uuid.UUID, input SettingsInput) (Organization, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Organization{}, err
	}
	org, err := s.repo.Get(ctx, id)
	if err != nil {
		return Organization{}, err
	}
	if input.Name != nil {
		org.Name = strings.TrimSpace(*input.Name)
	}
	if input.Currency != nil {
		org.Currency = strings.ToUpper(*input.Currency)
	}
	if input.InvoicePrefix != nil {
		prefix := strings.TrimSpace(*input.InvoicePrefix)
		if prefix == "" {
			return Organization{}, shared.NewValidationError("invoicePrefix", "must not be empty")
		}
		org.InvoicePrefix = prefix
	}
	if input.DefaultTaxRate != nil {
		if err := validateTaxRate(*input.DefaultTaxRate); err != nil {
			return Organization{}, err
		}
		org.DefaultTaxRate = *input.DefaultTaxRate
	}
	if input.InvoiceNumberSequence != nil {
		if *input.InvoiceNumberSequence < org.InvoiceNumberSequence {
			return Organization{}, shared.NewValidationError("invoiceNumberSequence", "can only move forward")
		}
		org.InvoiceNumberSequence = *input.InvoiceNumberSequence
	}
	org.UpdatedAt = s.clock()
	if err := s.repo.UpdateSettings(ctx, org); err != nil {
		return Organization{}, err
	}
	return s.repo.Get(ctx, id)
}

func validateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return shared.NewValidationError("defaultTaxRate", "must be between 0 and 100")
	}
	return nil
}
