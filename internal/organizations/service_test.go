package organizations

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

type memoryOrgRepo struct {
	orgs map[uuid.UUID]Organization
}

func newMemoryOrgRepo() *memoryOrgRepo {
	return &memoryOrgRepo{orgs: make(map[uuid.UUID]Organization)}
}

func (r *memoryOrgRepo) Create(ctx context.Context, org Organization) error {
	for _, existing := range r.orgs {
		if existing.OwnerUserID == org.OwnerUserID {
			return ErrOrganizationExists
		}
	}
	r.orgs[org.ID] = org
	return nil
}

func (r *memoryOrgRepo) Get(ctx context.Context, id uuid.UUID) (Organization, error) {
	org, ok := r.orgs[id]
	if !ok {
		return Organization{}, ErrOrganizationNotFound
	}
	return org, nil
}

func (r *memoryOrgRepo) GetByOwner(ctx context.Context, ownerUserID uuid.UUID) (Organization, error) {
	for _, org := range r.orgs {
		if org.OwnerUserID == ownerUserID {
			return org, nil
		}
	}
	return Organization{}, ErrOrganizationNotFound
}

func (r *memoryOrgRepo) UpdateSettings(ctx context.Context, org Organization) error {
	if _, ok := r.orgs[org.ID]; !ok {
		return ErrOrganizationNotFound
	}
	r.orgs[org.ID] = org
	return nil
}

func TestCreateOrganizationDefaults(t *testing.T) {
	svc := NewService(newMemoryOrgRepo())
	acct := shared.Account{UserID: uuid.New()}

	org, err := svc.Create(context.Background(), acct, CreateInput{Name: " Acme ", Currency: "usd", DefaultTaxRate: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, "Acme", org.Name)
	require.Equal(t, "USD", org.Currency)
	require.Equal(t, DefaultInvoicePrefix, org.InvoicePrefix)
	require.EqualValues(t, 1, org.InvoiceNumberSequence)

	_, err = svc.Create(context.Background(), acct, CreateInput{Name: "Again", Currency: "USD"})
	require.ErrorIs(t, err, ErrOrganizationExists)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateOrganizationValidation(t *testing.T) {
	svc := NewService(newMemoryOrgRepo())
	acct := shared.Account{UserID: uuid.New()}

	_, err := svc.Create(context.Background(), acct, CreateInput{Currency: "USD"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), acct, CreateInput{Name: "Acme", Currency: "USD", DefaultTaxRate: decimal.NewFromInt(101)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateSettingsSequenceOnlyMovesForward(t *testing.T) {
	repo := newMemoryOrgRepo()
	svc := NewService(repo)
	org, err := svc.Create(context.Background(), shared.Account{UserID: uuid.New()}, CreateInput{Name: "Acme", Currency: "USD"})
	require.NoError(t, err)

	next := int64(50)
	prefix := "ACME"
	updated, err := svc.UpdateSettings(context.Background(), org.ID, SettingsInput{InvoiceNumberSequence: &next, InvoicePrefix: &prefix})
	require.NoError(t, err)
	require.EqualValues(t, 50, updated.InvoiceNumberSequence)
	require.Equal(t, "ACME", updated.InvoicePrefix)

	back := int64(10)
	_, err = svc.UpdateSettings(context.Background(), org.ID, SettingsInput{InvoiceNumberSequence: &back})
	require.ErrorIs(t, err, shared.ErrValidation)
}
