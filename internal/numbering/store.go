package numbering

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/organizations"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore builds the postgres Store. Each counter update is a single
// UPDATE ... RETURNING, so concurrent callers serialize on the row lock.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) NextOrganizationNumber(ctx context.Context, orgID uuid.UUID) (string, int64, error) {
	var prefix string
	var seq int64
	err := s.pool.QueryRow(ctx, `UPDATE organizations
		SET invoice_number_sequence = invoice_number_sequence + 1
		WHERE id = $1
		RETURNING invoice_prefix, invoice_number_sequence - 1`, orgID).Scan(&prefix, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, organizations.ErrOrganizationNotFound
	}
	return prefix, seq, err
}

func (s *pgStore) NextCustomerNumber(ctx context.Context, orgID, customerID uuid.UUID) (string, int64, bool, error) {
	var prefix string
	var next int64
	err := s.pool.QueryRow(ctx, `UPDATE customers
		SET invoice_next_number = invoice_next_number + 1
		WHERE organization_id = $1 AND id = $2
		  AND invoice_prefix IS NOT NULL AND invoice_prefix <> ''
		  AND invoice_next_number IS NOT NULL AND invoice_next_number > 0
		RETURNING invoice_prefix, invoice_next_number - 1`, orgID, customerID).Scan(&prefix, &next)
	if err == nil {
		return prefix, next, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", 0, false, err
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE organization_id = $1 AND id = $2)`, orgID, customerID).Scan(&exists); err != nil {
		return "", 0, false, err
	}
	if !exists {
		return "", 0, false, customers.ErrCustomerNotFound
	}
	return "", 0, false, nil
}

func (s *pgStore) SkipOrganizationSequence(ctx context.Context, orgID uuid.UUID, next int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE organizations
		SET invoice_number_sequence = GREATEST(invoice_number_sequence, $2)
		WHERE id = $1`, orgID, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return organizations.ErrOrganizationNotFound
	}
	return nil
}

func (s *pgStore) SkipCustomerSequence(ctx context.Context, orgID, customerID uuid.UUID, next int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE customers
		SET invoice_next_number = GREATEST(invoice_next_number, $3)
		WHERE organization_id = $1 AND id = $2 AND invoice_next_number IS NOT NULL`, orgID, customerID, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return customers.ErrCustomerNotFound
	}
	return nil
}

func (s *pgStore) NumberExists(ctx context.Context, orgID uuid.UUID, number string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE organization_id = $1 AND invoice_number = $2)`, orgID, number).Scan(&exists)
	return exists, err
}

func (s *pgStore) MaxSuffix(ctx context.Context, prefix string) (int64, error) {
	var max int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(substring(invoice_number FROM char_length($1) + 2)::bigint), 0)
		FROM invoices
		WHERE invoice_number LIKE $2 ESCAPE '\'
		  AND substring(invoice_number FROM char_length($1) + 2) ~ '^[0-9]{1,18}$'`,
		prefix, escapeLike(prefix)+"-%").Scan(&max)
	return max, err
}
