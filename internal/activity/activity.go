package activity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names what happened to an invoice.
type Kind string

const (
	KindInvoiceCreated     Kind = "invoice.created"
	KindInvoiceUpdated     Kind = "invoice.updated"
	KindInvoiceSent        Kind = "invoice.sent"
	KindInvoiceViewed      Kind = "invoice.viewed"
	KindInvoicePaid        Kind = "invoice.paid"
	KindInvoiceOverdue     Kind = "invoice.overdue"
	KindInvoiceCancelled   Kind = "invoice.cancelled"
	KindRecurringGenerated Kind = "invoice.recurring_generated"
	KindPaymentRecorded    Kind = "payment.recorded"
	KindPaymentRefunded    Kind = "payment.refunded"
	KindNotificationFailed Kind = "notification.failed"
)

// Event is one entry of an invoice activity feed.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organizationId"`
	InvoiceID      uuid.UUID      `json:"invoiceId"`
	Kind           Kind           `json:"kind"`
	Message        string         `json:"message"`
	Meta           map[string]any `json:"meta,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// Recorder appends events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Store appends and reads events.
type Store interface {
	Recorder
	ListForInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, limit int) ([]Event, error)
}

// ErrInvalidEvent is returned for events missing their identity fields.
var ErrInvalidEvent = errors.New("activity event requires organization, invoice and kind")

const defaultListLimit = 100

// prepare validates e and fills its id and timestamp.
func prepare(e Event, now time.Time) (Event, error) {
	if e.OrganizationID == uuid.Nil || e.InvoiceID == uuid.Nil || e.Kind == "" {
		return Event{}, ErrInvalidEvent
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	e.OccurredAt = e.OccurredAt.UTC()
	return e, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > defaultListLimit {
		return defaultListLimit
	}
	return limit
}
