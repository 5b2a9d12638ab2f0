package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Repository persists customers.
type Repository interface {
	Create(ctx context.Context, customer Customer) error
	Get(ctx context.Context, orgID, id uuid.UUID) (Customer, error)
	FindActiveByEmail(ctx context.Context, orgID uuid.UUID, email string) (Customer, error)
	List(ctx context.Context, req ListRequest) ([]Customer, int, error)
	Update(ctx context.Context, customer Customer) error
	SoftDelete(ctx context.Context, orgID, id uuid.UUID, at time.Time) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the postgres repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, organization_id, name, email, phone, company, address, tax_id, wallet_address,
	invoice_prefix, invoice_next_number, total_paid, is_active, deleted_at, created_at, updated_at`

func (r *repository) Create(ctx context.Context, c Customer) error {
	prefix, next := settingsColumns(c.InvoiceSettings)
	_, err := r.pool.Exec(ctx, `INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.OrganizationID, c.Name, c.Email, c.Phone, c.Company, c.Address, c.TaxID, c.WalletAddress,
		prefix, next, c.TotalPaid, c.IsActive, c.DeletedAt, c.CreatedAt, c.UpdatedAt)
	if shared.IsUniqueViolation(err, "uq_customers_org_email_active") {
		return ErrDuplicateCustomerEmail
	}
	return err
}

func (r *repository) Get(ctx context.Context, orgID, id uuid.UUID) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE organization_id = $1 AND id = $2`, orgID, id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

func (r *repository) FindActiveByEmail(ctx context.Context, orgID uuid.UUID, email string) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers
		WHERE organization_id = $1 AND lower(email) = lower($2) AND is_active`, orgID, email)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Customer, int, error) {
	conditions := []string{"organization_id = $1", "is_active"}
	args := []interface{}{req.OrganizationID}
	argPos := 2

	if search := strings.TrimSpace(req.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR company ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+search+"%")
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM customers %s ORDER BY name LIMIT $%d OFFSET $%d`, customerColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	prefix, next := settingsColumns(c.InvoiceSettings)
	tag, err := r.pool.Exec(ctx, `UPDATE customers
		SET name = $3, email = $4, phone = $5, company = $6, address = $7, tax_id = $8, wallet_address = $9,
		    invoice_next_number = CASE WHEN invoice_prefix IS NOT DISTINCT FROM $10
		        THEN GREATEST(invoice_next_number, $11) ELSE $11 END,
		    invoice_prefix = $10, updated_at = $12
		WHERE organization_id = $1 AND id = $2 AND is_active`,
		c.OrganizationID, c.ID, c.Name, c.Email, c.Phone, c.Company, c.Address, c.TaxID, c.WalletAddress,
		prefix, next, c.UpdatedAt)
	if shared.IsUniqueViolation(err, "uq_customers_org_email_active") {
		return ErrDuplicateCustomerEmail
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, orgID, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET is_active = FALSE, deleted_at = $3, updated_at = $3
		WHERE organization_id = $1 AND id = $2 AND is_active`, orgID, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func settingsColumns(s *InvoiceSettings) (*string, *int64) {
	if s == nil {
		return nil, nil
	}
	prefix := s.Prefix
	next := s.NextNumber
	return &prefix, &next
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	var prefix *string
	var next *int64
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Address, &c.TaxID, &c.WalletAddress,
		&prefix, &next, &c.TotalPaid, &c.IsActive, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	if prefix != nil && next != nil {
		c.InvoiceSettings = &InvoiceSettings{Prefix: *prefix, NextNumber: *next}
	}
	return c, nil
}

// Execer is satisfied by pgx pools and transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AdjustTotalPaid moves the running total of a customer by delta. It runs on
// the caller's transaction so the total commits together with the payment.
// Soft-deleted customers are included to keep history consistent.
func AdjustTotalPaid(ctx context.Context, db Execer, orgID, id uuid.UUID, delta decimal.Decimal, at time.Time) error {
	tag, err := db.Exec(ctx, `UPDATE customers SET total_paid = total_paid + $3, updated_at = $4
		WHERE organization_id = $1 AND id = $2`, orgID, id, delta, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
