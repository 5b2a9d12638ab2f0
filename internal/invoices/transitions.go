package invoices

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

var (
	ErrInvoiceNotFound    = fmt.Errorf("invoice not found: %w", shared.ErrNotFound)
	ErrInvoiceAlreadyPaid = fmt.Errorf("invoice already paid: %w", shared.ErrInvalidTransition)
	ErrInvoiceCancelled   = fmt.Errorf("invoice cancelled: %w", shared.ErrInvalidTransition)
	ErrAmountOutstanding  = fmt.Errorf("invoice still has an amount due: %w", shared.ErrInvalidTransition)
	ErrNoLineItems        = &shared.ValidationError{Fields: []shared.FieldError{{Field: "lineItems", Message: "at least one line item is required to send"}}}
	// ErrVersionConflict signals a lost compare-and-set. Services retry on it.
	ErrVersionConflict = fmt.Errorf("invoice modified concurrently: %w", shared.ErrConflict)
)

// NewPublicID returns a random identifier for public links.
func NewPublicID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Send issues the invoice. A draft becomes sent; later sends only refresh SentAt.
func Send(inv Invoice, now time.Time) (Invoice, error) {
	if inv.Status == StatusCancelled {
		return inv, ErrInvoiceCancelled
	}
	if len(inv.LineItems) == 0 {
		return inv, ErrNoLineItems
	}
	if inv.PublicID == "" {
		inv.PublicID = NewPublicID()
	}
	sentAt := now
	inv.SentAt = &sentAt
	if inv.Status == StatusDraft {
		inv.Status = StatusSent
		inv = Recompute(inv, now)
	}
	inv.UpdatedAt = now
	return inv, nil
}

// View records the first public read. Only sent invoices change status.
func View(inv Invoice, now time.Time) (Invoice, bool) {
	if inv.Status != StatusSent {
		return inv, false
	}
	inv.Status = StatusViewed
	if inv.ViewedAt == nil {
		viewedAt := now
		inv.ViewedAt = &viewedAt
	}
	inv.UpdatedAt = now
	return inv, true
}

// MarkPaid closes an invoice whose amount due is already settled.
func MarkPaid(inv Invoice, now time.Time) (Invoice, error) {
	switch inv.Status {
	case StatusPaid:
		return inv, ErrInvoiceAlreadyPaid
	case StatusCancelled:
		return inv, ErrInvoiceCancelled
	}
	if inv.AmountDue.Sign() > 0 {
		return inv, ErrAmountOutstanding
	}
	inv.Status = StatusPaid
	if inv.PaidAt == nil {
		paidAt := now
		inv.PaidAt = &paidAt
	}
	inv.UpdatedAt = now
	return inv, nil
}

// Cancel voids an unpaid invoice. Cancelling twice is a no-op.
func Cancel(inv Invoice, now time.Time) (Invoice, error) {
	if inv.Status == StatusPaid {
		return inv, ErrInvoiceAlreadyPaid
	}
	if inv.Status == StatusCancelled {
		return inv, nil
	}
	inv.Status = StatusCancelled
	inv.UpdatedAt = now
	return inv, nil
}

// ApplyEdit applies input to a copy of inv and recomputes it.
func ApplyEdit(inv Invoice, input UpdateInput, now time.Time) (Invoice, error) {
	switch inv.Status {
	case StatusPaid:
		return inv, ErrInvoiceAlreadyPaid
	case StatusCancelled:
		return inv, ErrInvoiceCancelled
	}
	out := inv
	if input.LineItems != nil {
		items, err := buildLineItems(input.LineItems)
		if err != nil {
			return inv, err
		}
		out.LineItems = items
	}
	if input.TaxRate != nil {
		if err := validateTaxRate(*input.TaxRate); err != nil {
			return inv, err
		}
		out.TaxRate = *input.TaxRate
	}
	if input.Currency != nil {
		code := strings.ToUpper(*input.Currency)
		if code != inv.Currency && inv.AmountPaid.Sign() > 0 {
			return inv, shared.NewValidationError("currency", "cannot change after payments were recorded")
		}
		out.Currency = code
	}
	if input.IssueDate != nil {
		out.IssueDate = *input.IssueDate
	}
	if input.ClearDueDate {
		out.DueDate = nil
	} else if input.DueDate != nil {
		due := *input.DueDate
		out.DueDate = &due
	}
	if out.DueDate != nil && out.DueDate.Before(out.IssueDate) {
		return inv, shared.NewValidationError("dueDate", "must not be before the issue date")
	}
	if input.Notes != nil {
		out.Notes = *input.Notes
	}
	if input.Terms != nil {
		out.Terms = *input.Terms
	}
	if input.TemplateStyle != nil {
		out.TemplateStyle = *input.TemplateStyle
	}
	if input.PaymentMethods != nil {
		out.PaymentMethods = append([]string(nil), input.PaymentMethods...)
	}
	if input.IsRecurring != nil {
		out.IsRecurring = *input.IsRecurring
	}
	if input.RecurringInterval != nil {
		if *input.RecurringInterval != out.RecurringInterval {
			out.NextRecurringAt = nil
		}
		out.RecurringInterval = *input.RecurringInterval
	}
	if input.RecurringEndDate != nil {
		end := *input.RecurringEndDate
		out.RecurringEndDate = &end
	}
	if out.IsRecurring && out.RecurringInterval == "" {
		return inv, shared.NewValidationError("recurringInterval", "is required for recurring invoices")
	}
	if out.IsRecurring && out.ParentInvoiceID != nil {
		return inv, shared.NewValidationError("isRecurring", "generated invoices cannot recur")
	}

	out = Recompute(out, now)
	if out.Total.LessThan(out.AmountPaid) {
		return inv, shared.NewValidationError("lineItems", "total cannot drop below the amount already paid")
	}
	out.UpdatedAt = now
	return out, nil
}

func buildLineItems(inputs []LineItemInput) ([]LineItem, error) {
	items := make([]LineItem, 0, len(inputs))
	for i, in := range inputs {
		if in.Quantity.Sign() <= 0 {
			return nil, shared.NewValidationError(fmt.Sprintf("lineItems[%d].quantity", i), "must be greater than zero")
		}
		if in.UnitPrice.Sign() < 0 {
			return nil, shared.NewValidationError(fmt.Sprintf("lineItems[%d].unitPrice", i), "must not be negative")
		}
		items = append(items, LineItem{
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
		})
	}
	return items, nil
}

func validateTaxRate(rate decimal.Decimal) error {
	if rate.Sign() < 0 || rate.GreaterThan(hundred) {
		return shared.NewValidationError("taxRate", "must be between 0 and 100")
	}
	return nil
}
