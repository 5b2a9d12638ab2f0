package invoices

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

	"github.com/Koushith/Web3-Invoice-sub000/internal/numbering"
	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/db"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Repository persists invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Insert(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, orgID, id uuid.UUID) (Invoice, error)
	GetByPublicID(ctx context.Context, publicID string) (Invoice, error)
	GetByChainRequestID(ctx context.Context, requestID string) (Invoice, error)
	// Update writes inv if the stored version still equals inv.Version and
	// bumps the version. It returns ErrVersionConflict otherwise.
	Update(ctx context.Context, inv Invoice) error
	List(ctx context.Context, req ListRequest) ([]Invoice, int, error)
	ListPastDue(ctx context.Context, now time.Time, limit int) ([]Invoice, error)
	ListRecurring(ctx context.Context, today time.Time, after uuid.UUID, limit int) ([]Invoice, error)
	StatusCounts(ctx context.Context, orgID uuid.UUID) (map[Status]int, error)
	Totals(ctx context.Context, orgID uuid.UUID, now time.Time) (Totals, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, orgID, id uuid.UUID) (Invoice, error)
	Update(ctx context.Context, inv Invoice) error
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

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository exposes invoice statements on an open transaction so other
// packages can combine them with their own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if errors.Is(err, db.ErrSerialization) {
		return ErrVersionConflict
	}
	return err
}

func (r *repository) Insert(ctx context.Context, inv Invoice) error {
	return insertInvoice(ctx, r.pool, inv)
}

func (r *repository) Get(ctx context.Context, orgID, id uuid.UUID) (Invoice, error) {
	return getInvoice(ctx, r.pool, orgID, id)
}

func (r *repository) Update(ctx context.Context, inv Invoice) error {
	return updateInvoice(ctx, r.pool, inv)
}

func (r *repository) GetByPublicID(ctx context.Context, publicID string) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE public_id = $1`, publicID)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *repository) GetByChainRequestID(ctx context.Context, requestID string) (Invoice, error) {
	if requestID == "" {
		return Invoice{}, ErrInvoiceNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE chain_request_id = $1`, requestID)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Invoice, int, error) {
	conditions := []string{"organization_id = $1"}
	args := []interface{}{req.OrganizationID}
	argPos := 2

	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Recurring != nil {
		conditions = append(conditions, fmt.Sprintf("is_recurring = $%d", argPos))
		args = append(args, *req.Recurring)
		argPos++
	}
	if search := strings.TrimSpace(req.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf("(invoice_number ILIKE $%d OR notes ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+search+"%")
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY issue_date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)
	items, err := queryInvoices(ctx, r.pool, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repository) ListPastDue(ctx context.Context, now time.Time, limit int) ([]Invoice, error) {
	return queryInvoices(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices
		WHERE status IN ('sent', 'viewed', 'partial') AND due_date IS NOT NULL AND due_date < $1
		ORDER BY due_date LIMIT $2`, now, limit)
}

func (r *repository) ListRecurring(ctx context.Context, today time.Time, after uuid.UUID, limit int) ([]Invoice, error) {
	return queryInvoices(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices
		WHERE is_recurring AND status <> 'cancelled'
		  AND (recurring_end_date IS NULL OR recurring_end_date >= $1)
		  AND id > $2
		ORDER BY id LIMIT $3`, today, after, limit)
}

func (r *repository) StatusCounts(ctx context.Context, orgID uuid.UUID) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM invoices WHERE organization_id = $1 GROUP BY status`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *repository) Totals(ctx context.Context, orgID uuid.UUID, now time.Time) (Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `SELECT
			COALESCE(SUM(amount_due) FILTER (WHERE status IN ('sent', 'viewed', 'partial', 'overdue')), 0),
			COALESCE(SUM(amount_due) FILTER (WHERE status = 'overdue'
				OR (status IN ('sent', 'viewed', 'partial') AND due_date IS NOT NULL AND due_date < $2)), 0),
			COALESCE(SUM(amount_paid), 0)
		FROM invoices WHERE organization_id = $1`, orgID, now).Scan(&t.Outstanding, &t.Overdue, &t.Collected)
	return t, err
}

func (r *txRepo) Insert(ctx context.Context, inv Invoice) error {
	// Savepoint so a duplicate number leaves the outer transaction usable for a retry.
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := insertInvoice(ctx, sp, inv); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (r *txRepo) Get(ctx context.Context, orgID, id uuid.UUID) (Invoice, error) {
	return getInvoice(ctx, r.tx, orgID, id)
}

func (r *txRepo) Update(ctx context.Context, inv Invoice) error {
	return updateInvoice(ctx, r.tx, inv)
}

const invoiceColumns = `id, organization_id, customer_id, invoice_number, public_id, status, currency, line_items,
	subtotal, tax_rate, tax_amount, total, amount_paid, amount_due,
	issue_date, due_date, sent_at, viewed_at, paid_at,
	notes, terms, template_style, payment_methods,
	is_recurring, recurring_interval, recurring_end_date, last_recurring_at, next_recurring_at, parent_invoice_id,
	chain_request_id, version, created_at, updated_at`

func insertInvoice(ctx context.Context, q querier, inv Invoice) error {
	_, err := q.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		        $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)`,
		inv.ID, inv.OrganizationID, inv.CustomerID, inv.InvoiceNumber, nullString(inv.PublicID), inv.Status, inv.Currency, inv.LineItems,
		inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total, inv.AmountPaid, inv.AmountDue,
		inv.IssueDate, inv.DueDate, inv.SentAt, inv.ViewedAt, inv.PaidAt,
		inv.Notes, inv.Terms, inv.TemplateStyle, inv.PaymentMethods,
		inv.IsRecurring, string(inv.RecurringInterval), inv.RecurringEndDate, inv.LastRecurringAt, inv.NextRecurringAt, inv.ParentInvoiceID,
		inv.ChainRequestID, inv.Version, inv.CreatedAt, inv.UpdatedAt)
	if shared.IsUniqueViolation(err, "uq_invoices_number") {
		return numbering.ErrDuplicateInvoiceNumber
	}
	return err
}

func getInvoice(ctx context.Context, q querier, orgID, id uuid.UUID) (Invoice, error) {
	row := q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE organization_id = $1 AND id = $2`, orgID, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func updateInvoice(ctx context.Context, q querier, inv Invoice) error {
	tag, err := q.Exec(ctx, `UPDATE invoices SET
			public_id = $4, status = $5, currency = $6, line_items = $7,
			subtotal = $8, tax_rate = $9, tax_amount = $10, total = $11, amount_paid = $12, amount_due = $13,
			issue_date = $14, due_date = $15, sent_at = $16, viewed_at = $17, paid_at = $18,
			notes = $19, terms = $20, template_style = $21, payment_methods = $22,
			is_recurring = $23, recurring_interval = $24, recurring_end_date = $25,
			last_recurring_at = $26, next_recurring_at = $27, chain_request_id = $28,
			updated_at = $29, version = version + 1
		WHERE organization_id = $1 AND id = $2 AND version = $3`,
		inv.OrganizationID, inv.ID, inv.Version,
		nullString(inv.PublicID), inv.Status, inv.Currency, inv.LineItems,
		inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total, inv.AmountPaid, inv.AmountDue,
		inv.IssueDate, inv.DueDate, inv.SentAt, inv.ViewedAt, inv.PaidAt,
		inv.Notes, inv.Terms, inv.TemplateStyle, inv.PaymentMethods,
		inv.IsRecurring, string(inv.RecurringInterval), inv.RecurringEndDate,
		inv.LastRecurringAt, inv.NextRecurringAt, inv.ChainRequestID,
		inv.UpdatedAt)
	if err != nil {
		if shared.IsSerializationFailure(err) {
			return ErrVersionConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func queryInvoices(ctx context.Context, q querier, sql string, args ...any) ([]Invoice, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var publicID *string
	var interval string
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.CustomerID, &inv.InvoiceNumber, &publicID, &inv.Status, &inv.Currency, &inv.LineItems,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Total, &inv.AmountPaid, &inv.AmountDue,
		&inv.IssueDate, &inv.DueDate, &inv.SentAt, &inv.ViewedAt, &inv.PaidAt,
		&inv.Notes, &inv.Terms, &inv.TemplateStyle, &inv.PaymentMethods,
		&inv.IsRecurring, &interval, &inv.RecurringEndDate, &inv.LastRecurringAt, &inv.NextRecurringAt, &inv.ParentInvoiceID,
		&inv.ChainRequestID, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	if publicID != nil {
		inv.PublicID = *publicID
	}
	inv.RecurringInterval = Interval(interval)
	return inv, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
