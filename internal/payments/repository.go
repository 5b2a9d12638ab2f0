package payments

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

	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/db"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

const referenceConstraint = "uq_payments_org_reference_completed"

// Repository persists payments.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, orgID, id uuid.UUID) (Payment, error)
	List(ctx context.Context, req ListRequest) ([]Payment, int, error)
	// SumCompleted totals the completed payments of an invoice.
	SumCompleted(ctx context.Context, orgID, invoiceID uuid.UUID) (decimal.Decimal, error)
}

// TxRepository is the set of statements a payment transaction runs. Invoice
// and customer writes share the transaction with the payment row.
type TxRepository interface {
	Invoices() invoices.TxRepository
	Insert(ctx context.Context, p Payment) error
	Get(ctx context.Context, orgID, id uuid.UUID) (Payment, error)
	ReferenceExists(ctx context.Context, orgID uuid.UUID, reference string) (bool, error)
	MarkRefunded(ctx context.Context, p Payment) error
	AdjustCustomerTotal(ctx context.Context, orgID, customerID uuid.UUID, delta decimal.Decimal, at time.Time) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the postgres repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, invoices: invoices.NewTxRepository(tx)})
	})
	if errors.Is(err, db.ErrSerialization) {
		return invoices.ErrVersionConflict
	}
	return err
}

func (r *repository) Get(ctx context.Context, orgID, id uuid.UUID) (Payment, error) {
	return getPayment(ctx, r.pool, orgID, id, false)
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Payment, int, error) {
	conditions := []string{"organization_id = $1"}
	args := []any{req.OrganizationID}
	argPos := 2
	if req.InvoiceID != nil {
		conditions = append(conditions, fmt.Sprintf("invoice_id = $%d", argPos))
		args = append(args, *req.InvoiceID)
		argPos++
	}
	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM payments "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM payments %s ORDER BY processed_at DESC, id LIMIT $%d OFFSET $%d", paymentColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) SumCompleted(ctx context.Context, orgID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
WHERE organization_id = $1 AND invoice_id = $2 AND status = 'completed'`, orgID, invoiceID).Scan(&sum)
	return sum, err
}

type txRepo struct {
	tx       pgx.Tx
	invoices invoices.TxRepository
}

func (r *txRepo) Invoices() invoices.TxRepository { return r.invoices }

func (r *txRepo) Insert(ctx context.Context, p Payment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.OrganizationID, p.InvoiceID, p.CustomerID, p.Amount, p.Currency, p.Method,
		nullString(p.Reference), p.Status, p.ProcessedAt, p.Notes, p.RefundedAt, p.RefundReason,
		p.CreatedAt, p.UpdatedAt)
	if shared.IsUniqueViolation(err, referenceConstraint) {
		return ErrDuplicatePaymentReference
	}
	return err
}

func (r *txRepo) Get(ctx context.Context, orgID, id uuid.UUID) (Payment, error) {
	return getPayment(ctx, r.tx, orgID, id, true)
}

func (r *txRepo) ReferenceExists(ctx context.Context, orgID uuid.UUID, reference string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments
WHERE organization_id = $1 AND reference = $2 AND status = 'completed')`, orgID, reference).Scan(&exists)
	return exists, err
}

func (r *txRepo) MarkRefunded(ctx context.Context, p Payment) error {
	tag, err := r.tx.Exec(ctx, `UPDATE payments SET status = 'refunded', refunded_at = $3, refund_reason = $4, updated_at = $5
WHERE organization_id = $1 AND id = $2 AND status = 'completed'`,
		p.OrganizationID, p.ID, p.RefundedAt, p.RefundReason, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return invoices.ErrVersionConflict
	}
	return nil
}

func (r *txRepo) AdjustCustomerTotal(ctx context.Context, orgID, customerID uuid.UUID, delta decimal.Decimal, at time.Time) error {
	return customers.AdjustTotalPaid(ctx, r.tx, orgID, customerID, delta, at)
}

const paymentColumns = `id, organization_id, invoice_id, customer_id, amount, currency, method,
reference, status, processed_at, notes, refunded_at, refund_reason, created_at, updated_at`

func getPayment(ctx context.Context, q querier, orgID, id uuid.UUID, forUpdate bool) (Payment, error) {
	sql := `SELECT ` + paymentColumns + ` FROM payments WHERE organization_id = $1 AND id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	p, err := scanPayment(q.QueryRow(ctx, sql, orgID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p         Payment
		reference *string
	)
	err := row.Scan(&p.ID, &p.OrganizationID, &p.InvoiceID, &p.CustomerID, &p.Amount, &p.Currency, &p.Method,
		&reference, &p.Status, &p.ProcessedAt, &p.Notes, &p.RefundedAt, &p.RefundReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, err
	}
	if reference != nil {
		p.Reference = *reference
	}
	return p, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
