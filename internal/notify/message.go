// Package notify delivers issued invoices to customers by email.
package notify

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// ErrNoRecipient is returned when the customer has no usable email address.
var ErrNoRecipient = fmt.Errorf("customer has no valid email address: %w", shared.ErrExternalService)

// Message is an invoice notification.
type Message struct {
	Invoice       invoices.Invoice
	CustomerEmail string
	PublicURL     string
}

// Email is a rendered notification.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Compose renders msg as a plain-text email.
func Compose(msg Message) (Email, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(msg.CustomerEmail))
	if err != nil {
		return Email{}, ErrNoRecipient
	}
	inv := msg.Invoice
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\nInvoice %s for %s has been issued.\n",
		inv.InvoiceNumber, shared.FormatMoney(inv.Currency, inv.Total))
	if inv.AmountPaid.Sign() > 0 {
		fmt.Fprintf(&b, "Amount due: %s\n", shared.FormatMoney(inv.Currency, inv.AmountDue))
	}
	if inv.DueDate != nil {
		fmt.Fprintf(&b, "Due date: %s\n", inv.DueDate.Format("January 2, 2006"))
	}
	if msg.PublicURL != "" {
		fmt.Fprintf(&b, "\nView and pay online: %s\n", msg.PublicURL)
	}
	if inv.Terms != "" {
		fmt.Fprintf(&b, "\n%s\n", inv.Terms)
	}
	return Email{
		To:      addr.Address,
		Subject: "Invoice " + inv.InvoiceNumber,
		Body:    b.String(),
	}, nil
}
