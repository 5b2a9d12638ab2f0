package invoices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// Recompute re-derives every monetary field and the status of inv. Order:
// line amounts, subtotal, tax, total, amount due, then status. PaidAt is
// stamped the first time the invoice becomes paid.
func Recompute(inv Invoice, now time.Time) Invoice {
	items := make([]LineItem, len(inv.LineItems))
	subtotal := decimal.Zero
	for i, item := range inv.LineItems {
		item.Amount = shared.RoundMoney(item.Quantity.Mul(item.UnitPrice))
		items[i] = item
		subtotal = subtotal.Add(item.Amount)
	}
	inv.LineItems = items
	inv.Subtotal = subtotal
	inv.TaxAmount = shared.RoundMoney(subtotal.Mul(inv.TaxRate).Div(hundred))
	inv.Total = inv.Subtotal.Add(inv.TaxAmount)
	inv.AmountDue = inv.Total.Sub(inv.AmountPaid)
	inv.Status = DeriveStatus(inv.Total, inv.AmountPaid, inv.DueDate, inv.Status, now)
	if inv.Status == StatusPaid && inv.PaidAt == nil {
		paidAt := now
		inv.PaidAt = &paidAt
	}
	return inv
}

// DeriveStatus computes the payment-driven status. Draft and cancelled are
// left alone; they only change through explicit transitions.
func DeriveStatus(total, amountPaid decimal.Decimal, dueDate *time.Time, current Status, now time.Time) Status {
	if current == StatusDraft || current == StatusCancelled {
		return current
	}
	status := current
	switch {
	case amountPaid.Sign() <= 0:
		// Overdue is recomputed below, so an unpaid invoice restarts from sent.
		if status == StatusPaid || status == StatusPartial || status == StatusOverdue {
			status = StatusSent
		}
	case amountPaid.GreaterThanOrEqual(total):
		status = StatusPaid
	default:
		status = StatusPartial
	}
	if status != StatusPaid && dueDate != nil && now.After(*dueDate) {
		status = StatusOverdue
	}
	return status
}

// IsOverdue reports whether inv would be marked overdue at now.
func IsOverdue(inv Invoice, now time.Time) bool {
	return DeriveStatus(inv.Total, inv.AmountPaid, inv.DueDate, inv.Status, now) == StatusOverdue
}
