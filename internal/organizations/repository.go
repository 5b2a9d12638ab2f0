package organizations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Repository persists organizations.
type Repository interface {
	Create(ctx context.Context, org Organization) error
	Get(ctx context.Context, id uuid.UUID) (Organization, error)
	GetByOwner(ctx context.Context, ownerUserID uuid.UUID) (Organization, error)
	UpdateSettings(ctx context.Context, org Organization) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the postgres repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const selectOrganization = `SELECT id, owner_user_id, name, currency, invoice_prefix,
	invoice_number_sequence, default_tax_rate, created_at, updated_at
	FROM organizations`

func (r *repository) Create(ctx context.Context, org Organization) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO organizations
		(id, owner_user_id, name, currency, invoice_prefix, invoice_number_sequence, default_tax_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		org.ID, org.OwnerUserID, org.Name, org.Currency, org.InvoicePrefix,
		org.InvoiceNumberSequence, org.DefaultTaxRate, org.CreatedAt, org.UpdatedAt)
	if shared.IsUniqueViolation(err, "uq_organizations_owner") {
		return ErrOrganizationExists
	}
	return err
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Organization, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectOrganization+` WHERE id = $1`, id))
}

func (r *repository) GetByOwner(ctx context.Context, ownerUserID uuid.UUID) (Organization, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectOrganization+` WHERE owner_user_id = $1`, ownerUserID))
}

func (r *repository) UpdateSettings(ctx context.Context, org Organization) error {
	// GREATEST keeps the sequence monotonic even if a concurrent allocation moved it.
	tag, err := r.pool.Exec(ctx, `UPDATE organizations
		SET name = $2, currency = $3, invoice_prefix = $4, default_tax_rate = $5,
		    invoice_number_sequence = GREATEST(invoice_number_sequence, $6), updated_at = $7
		WHERE id = $1`,
		org.ID, org.Name, org.Currency, org.InvoicePrefix, org.DefaultTaxRate, org.InvoiceNumberSequence, org.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

func (r *repository) scanOne(row pgx.Row) (Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.OwnerUserID, &org.Name, &org.Currency, &org.InvoicePrefix,
		&org.InvoiceNumberSequence, &org.DefaultTaxRate, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, ErrOrganizationNotFound
	}
	return org, err
}
