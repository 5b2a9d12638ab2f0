package customers

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
	ErrCustomerNotFound       = fmt.Errorf("customer not found: %w", shared.ErrNotFound)
	ErrDuplicateCustomerEmail = fmt.Errorf("customer email already in use: %w", shared.ErrConflict)
	ErrCustomerInactive       = fmt.Errorf("customer has been deleted: %w", shared.ErrValidation)
)

// Service implements customer management.
type Service struct {
	repo  Repository
	clock func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: func() time.Time { return time.Now().UTC() }}
}

// Create registers a customer for the organization.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (Customer, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Customer{}, err
	}
	email := normalizeEmail(input.Email)
	if err := s.ensureEmailFree(ctx, orgID, email, uuid.Nil); err != nil {
		return Customer{}, err
	}
	now := s.clock()
	c := Customer{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           strings.TrimSpace(input.Name),
		Email:          email,
		Phone:          input.Phone,
		Company:        input.Company,
		Address:        input.Address,
		TaxID:          input.TaxID,
		WalletAddress:  input.WalletAddress,
		TotalPaid:      decimal.Zero,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.InvoiceSettings != nil {
		c.InvoiceSettings = &InvoiceSettings{Prefix: strings.TrimSpace(input.InvoiceSettings.Prefix), NextNumber: input.InvoiceSettings.NextNumber}
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// Get loads a customer, including soft-deleted ones so invoice history stays readable.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (Customer, error) {
	return s.repo.Get(ctx, orgID, id)
}

// GetActive loads a customer that can still be invoiced.
func (s *Service) GetActive(ctx context.Context, orgID, id uuid.UUID) (Customer, error) {
	c, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return Customer{}, err
	}
	if !c.IsActive {
		return Customer{}, ErrCustomerInactive
	}
	return c, nil
}

// List returns active customers with the total count.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Customer, int, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	return s.repo.List(ctx, req)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, input UpdateInput) (Customer, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Customer{}, err
	}
	c, err := s.GetActive(ctx, orgID, id)
	if err != nil {
		return Customer{}, err
	}
	if input.Name != nil {
		c.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if email != c.Email {
			if err := s.ensureEmailFree(ctx, orgID, email, c.ID); err != nil {
				return Customer{}, err
			}
		}
		c.Email = email
	}
	if input.Phone != nil {
		c.Phone = *input.Phone
	}
	if input.Company != nil {
		c.Company = *input.Company
	}
	if input.Address != nil {
		c.Address = *input.Address
	}
	if input.TaxID != nil {
		c.TaxID = *input.TaxID
	}
	if input.WalletAddress != nil {
		c.WalletAddress = *input.WalletAddress
	}
	switch {
	case input.ClearInvoiceSettings:
		c.InvoiceSettings = nil
	case input.InvoiceSettings != nil:
		c.InvoiceSettings = &InvoiceSettings{Prefix: strings.TrimSpace(input.InvoiceSettings.Prefix), NextNumber: input.InvoiceSettings.NextNumber}
	}
	c.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, c); err != nil {
		return Customer{}, err
	}
	return s.repo.Get(ctx, orgID, id)
}

// Delete soft-deletes the customer. Invoices and payments keep referencing it.
func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, orgID, id, s.clock())
}

func (s *Service) ensureEmailFree(ctx context.Context, orgID uuid.UUID, email string, self uuid.UUID) error {
	existing, err := s.repo.FindActiveByEmail(ctx, orgID, email)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return ErrDuplicateCustomerEmail
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
