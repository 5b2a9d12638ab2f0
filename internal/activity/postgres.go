package activity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore writes events into invoice_activity.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Record persists the event.
func (s *PostgresStore) Record(ctx context.Context, event Event) error {
	if s == nil {
		return errors.New("activity store not initialised")
	}
	event, err := prepare(event, time.Now())
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO invoice_activity (id, organization_id, invoice_id, kind, message, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.OrganizationID, event.InvoiceID, string(event.Kind), event.Message, metaJSON, event.OccurredAt)
	return err
}

// ListForInvoice returns the newest events first.
func (s *PostgresStore) ListForInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, organization_id, invoice_id, kind, message, meta, occurred_at
		FROM invoice_activity
		WHERE organization_id = $1 AND invoice_id = $2
		ORDER BY occurred_at DESC LIMIT $3`, orgID, invoiceID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind string
		var meta []byte
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.InvoiceID, &kind, &e.Message, &meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
