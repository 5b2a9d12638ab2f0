package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Koushith/Web3-Invoice-sub000/internal/activity"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

const maxRecordAttempts = 5

// NoteAppender appends a line to the notes of an invoice.
type NoteAppender interface {
	AppendNote(ctx context.Context, orgID, id uuid.UUID, note string) (invoices.Invoice, error)
}

// Metrics observes recorder outcomes.
type Metrics interface {
	PaymentRecorded(method string)
	PaymentRejected(reason string)
}

// Recorder applies payments and refunds to invoices.
type Recorder struct {
	repo     Repository
	notes    NoteAppender
	activity activity.Recorder
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock.
func (r *Recorder) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// SetNotes wires the note appender used after a payment commits.
func (r *Recorder) SetNotes(n NoteAppender) { r.notes = n }

// SetActivity wires the activity feed.
func (r *Recorder) SetActivity(a activity.Recorder) { r.activity = a }

// SetMetrics wires metrics.
func (r *Recorder) SetMetrics(m Metrics) { r.metrics = m }

// Record stores a completed payment and updates the invoice and customer
// totals in the same transaction.
func (r *Recorder) Record(ctx context.Context, orgID uuid.UUID, input RecordInput) (Result, error) {
	if err := validateRecord(input); err != nil {
		r.rejected("validation")
		return Result{}, err
	}
	return r.apply(ctx, orgID, input, false)
}

// apply runs the payment transaction. With remainder set the amount is the
// invoice's amount due as read inside the transaction, so payments committed
// concurrently shrink it instead of failing the call.
func (r *Recorder) apply(ctx context.Context, orgID uuid.UUID, input RecordInput, remainder bool) (Result, error) {
	input.Reference = strings.TrimSpace(input.Reference)

	var result Result
	err := r.retry(ctx, func(ctx context.Context, tx TxRepository, now time.Time) error {
		inv, err := tx.Invoices().Get(ctx, orgID, input.InvoiceID)
		if err != nil {
			return err
		}
		if remainder {
			input.Amount = inv.AmountDue
		}
		switch {
		case inv.Status == invoices.StatusCancelled:
			return invoices.ErrInvoiceCancelled
		case inv.Status == invoices.StatusPaid || inv.AmountDue.Sign() <= 0:
			return ErrAlreadyPaid
		case input.Amount.GreaterThan(inv.AmountDue):
			return ErrAmountExceedsDue
		}
		if input.Reference != "" {
			exists, err := tx.ReferenceExists(ctx, orgID, input.Reference)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicatePaymentReference
			}
		}

		p := Payment{
			ID:             uuid.New(),
			OrganizationID: orgID,
			InvoiceID:      inv.ID,
			CustomerID:     inv.CustomerID,
			Amount:         input.Amount,
			Currency:       inv.Currency,
			Method:         input.Method,
			Reference:      input.Reference,
			Status:         StatusCompleted,
			ProcessedAt:    now,
			Notes:          strings.TrimSpace(input.Notes),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if input.ProcessedAt != nil {
			p.ProcessedAt = input.ProcessedAt.UTC()
		}
		if err := tx.Insert(ctx, p); err != nil {
			return err
		}

		inv.AmountPaid = inv.AmountPaid.Add(p.Amount)
		inv = invoices.Recompute(inv, now)
		inv.UpdatedAt = now
		if err := tx.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		inv.Version++
		if err := tx.AdjustCustomerTotal(ctx, orgID, inv.CustomerID, p.Amount, now); err != nil {
			return err
		}
		result = Result{Payment: p, Invoice: inv}
		return nil
	})
	if err != nil {
		if !remainder || !errors.Is(err, ErrAlreadyPaid) {
			r.rejected(rejectReason(err))
		}
		return Result{}, err
	}

	p := result.Payment
	if r.metrics != nil {
		r.metrics.PaymentRecorded(string(p.Method))
	}
	if r.notes != nil {
		updated, err := r.notes.AppendNote(ctx, orgID, p.InvoiceID, paymentNote(p))
		if err != nil {
			r.logger.Warn("append payment note failed",
				slog.String("payment_id", p.ID.String()),
				slog.Any("error", err))
			result.Warnings = append(result.Warnings, shared.ExternalWarning("note", err))
		} else {
			result.Invoice = updated
		}
	}
	r.record(ctx, p, activity.KindPaymentRecorded, "Payment of "+shared.FormatMoney(p.Currency, p.Amount)+" recorded")
	if result.Invoice.Status == invoices.StatusPaid {
		r.record(ctx, p, activity.KindInvoicePaid, "Invoice "+result.Invoice.InvoiceNumber+" paid in full")
	}
	return result, nil
}

// Refund reverses a completed payment. The invoice amount paid and status
// follow; a paid invoice drops back to partial or sent.
func (r *Recorder) Refund(ctx context.Context, orgID, paymentID uuid.UUID, input RefundInput) (Result, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Result{}, err
	}
	var result Result
	err := r.retry(ctx, func(ctx context.Context, tx TxRepository, now time.Time) error {
		p, err := tx.Get(ctx, orgID, paymentID)
		if err != nil {
			return err
		}
		if p.Status != StatusCompleted {
			return ErrNotRefundable
		}
		inv, err := tx.Invoices().Get(ctx, orgID, p.InvoiceID)
		if err != nil {
			return err
		}
		p.Status = StatusRefunded
		p.RefundedAt = &now
		p.RefundReason = strings.TrimSpace(input.Reason)
		p.UpdatedAt = now
		if err := tx.MarkRefunded(ctx, p); err != nil {
			return err
		}

		inv.AmountPaid = inv.AmountPaid.Sub(p.Amount)
		if inv.AmountPaid.IsNegative() {
			return fmt.Errorf("refund would make amount paid negative: %w", shared.ErrInvalidTransition)
		}
		inv = invoices.Recompute(inv, now)
		inv.UpdatedAt = now
		if err := tx.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		inv.Version++
		if err := tx.AdjustCustomerTotal(ctx, orgID, inv.CustomerID, p.Amount.Neg(), now); err != nil {
			return err
		}
		result = Result{Payment: p, Invoice: inv}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	r.record(ctx, result.Payment, activity.KindPaymentRefunded,
		"Payment of "+shared.FormatMoney(result.Payment.Currency, result.Payment.Amount)+" refunded")
	return result, nil
}

// Settle records the outstanding amount of an invoice as a manual payment.
// An invoice with nothing left to pay is a no-op.
func (r *Recorder) Settle(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	if invoiceID == uuid.Nil {
		return shared.NewValidationError("invoiceId", "is required")
	}
	_, err := r.apply(ctx, orgID, RecordInput{
		InvoiceID: invoiceID,
		Method:    MethodManual,
		Notes:     "Marked as paid",
	}, true)
	if errors.Is(err, ErrAlreadyPaid) {
		return nil
	}
	return err
}

// Get loads a payment.
func (r *Recorder) Get(ctx context.Context, orgID, id uuid.UUID) (Payment, error) {
	return r.repo.Get(ctx, orgID, id)
}

// List returns payments matching req.
func (r *Recorder) List(ctx context.Context, req ListRequest) ([]Payment, int, error) {
	return r.repo.List(ctx, req)
}

func (r *Recorder) retry(ctx context.Context, fn func(context.Context, TxRepository, time.Time) error) error {
	for attempt := 0; attempt < maxRecordAttempts; attempt++ {
		err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return fn(ctx, tx, r.now())
		})
		if errors.Is(err, invoices.ErrVersionConflict) {
			continue
		}
		return err
	}
	return invoices.ErrConcurrentUpdate
}

func validateRecord(input RecordInput) error {
	if err := shared.ValidateStruct(input); err != nil {
		return err
	}
	if input.InvoiceID == uuid.Nil {
		return shared.NewValidationError("invoiceId", "is required")
	}
	if input.Amount.Sign() <= 0 {
		return shared.NewValidationError("amount", "must be greater than zero")
	}
	if !input.Amount.Equal(shared.RoundMoney(input.Amount)) {
		return shared.NewValidationError("amount", "has more than two decimal places")
	}
	return nil
}

func paymentNote(p Payment) string {
	var b strings.Builder
	b.WriteString("Payment of ")
	b.WriteString(shared.FormatMoney(p.Currency, p.Amount))
	b.WriteString(" received via ")
	b.WriteString(strings.ReplaceAll(string(p.Method), "_", " "))
	if p.Reference != "" {
		b.WriteString(" (ref ")
		b.WriteString(p.Reference)
		b.WriteString(")")
	}
	b.WriteString(" on ")
	b.WriteString(p.ProcessedAt.Format("2006-01-02"))
	return b.String()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrAmountExceedsDue):
		return "exceeds_due"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, invoices.ErrInvoiceCancelled):
		return "cancelled"
	case errors.Is(err, ErrDuplicatePaymentReference):
		return "duplicate_reference"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func (r *Recorder) rejected(reason string) {
	if r.metrics != nil {
		r.metrics.PaymentRejected(reason)
	}
}

func (r *Recorder) record(ctx context.Context, p Payment, kind activity.Kind, message string) {
	if r.activity == nil {
		return
	}
	err := r.activity.Record(ctx, activity.Event{
		OrganizationID: p.OrganizationID,
		InvoiceID:      p.InvoiceID,
		Kind:           kind,
		Message:        message,
		Meta: map[string]any{
			"paymentId": p.ID.String(),
			"amount":    p.Amount.StringFixed(shared.MoneyPlaces),
			"method":    string(p.Method),
		},
	})
	if err != nil {
		r.logger.Warn("activity record failed",
			slog.String("payment_id", p.ID.String()),
			slog.Any("error", err))
	}
}
