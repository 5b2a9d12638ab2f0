package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Status enumerates invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusViewed    Status = "viewed"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusViewed, StatusPartial, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Interval is the cadence of a recurring invoice.
type Interval string

const (
	IntervalWeekly    Interval = "weekly"
	IntervalMonthly   Interval = "monthly"
	IntervalQuarterly Interval = "quarterly"
	IntervalYearly    Interval = "yearly"
)

// LineItem is a billed line. Amount is derived from Quantity and UnitPrice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is the central billing document.
type Invoice struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	CustomerID     uuid.UUID  `json:"customerId"`
	InvoiceNumber  string     `json:"invoiceNumber"`
	PublicID       string     `json:"publicId,omitempty"`
	Status         Status     `json:"status"`
	Currency       string     `json:"currency"`
	LineItems      []LineItem `json:"lineItems"`

	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxRate    decimal.Decimal `json:"taxRate"`
	TaxAmount  decimal.Decimal `json:"taxAmount"`
	Total      decimal.Decimal `json:"total"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	AmountDue  decimal.Decimal `json:"amountDue"`

	IssueDate time.Time  `json:"issueDate"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	ViewedAt  *time.Time `json:"viewedAt,omitempty"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`

	Notes          string   `json:"notes,omitempty"`
	Terms          string   `json:"terms,omitempty"`
	TemplateStyle  string   `json:"templateStyle,omitempty"`
	PaymentMethods []string `json:"paymentMethods,omitempty"`

	IsRecurring       bool       `json:"isRecurring"`
	RecurringInterval Interval   `json:"recurringInterval,omitempty"`
	RecurringEndDate  *time.Time `json:"recurringEndDate,omitempty"`
	LastRecurringAt   *time.Time `json:"lastRecurringAt,omitempty"`
	NextRecurringAt   *time.Time `json:"nextRecurringAt,omitempty"`
	ParentInvoiceID   *uuid.UUID `json:"parentInvoiceId,omitempty"`

	ChainRequestID string `json:"chainRequestId,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Payable reports whether the invoice can still accept payments.
func (inv Invoice) Payable() bool {
	return inv.Status != StatusPaid && inv.Status != StatusCancelled
}

// LineItemInput is a line as supplied by callers.
type LineItemInput struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// CreateInput carries a new invoice. Send issues it immediately.
type CreateInput struct {
	CustomerID        uuid.UUID        `json:"customerId"`
	InvoiceNumber     string           `json:"invoiceNumber" validate:"omitempty,max=50"`
	Currency          string           `json:"currency" validate:"omitempty,len=3"`
	IssueDate         *time.Time       `json:"issueDate"`
	DueDate           *time.Time       `json:"dueDate"`
	LineItems         []LineItemInput  `json:"lineItems" validate:"dive"`
	TaxRate           *decimal.Decimal `json:"taxRate"`
	Notes             string           `json:"notes" validate:"omitempty,max=5000"`
	Terms             string           `json:"terms" validate:"omitempty,max=5000"`
	TemplateStyle     string           `json:"templateStyle" validate:"omitempty,max=50"`
	PaymentMethods    []string         `json:"paymentMethods" validate:"dive,oneof=cash bank_transfer card crypto check manual other"`
	IsRecurring       bool             `json:"isRecurring"`
	RecurringInterval Interval         `json:"recurringInterval" validate:"omitempty,oneof=weekly monthly quarterly yearly"`
	RecurringEndDate  *time.Time       `json:"recurringEndDate"`
	Send              bool             `json:"send"`
}

// UpdateInput is a partial edit. A nil LineItems leaves the lines untouched,
// an empty non-nil slice removes them.
type UpdateInput struct {
	LineItems         []LineItemInput  `json:"lineItems" validate:"dive"`
	TaxRate           *decimal.Decimal `json:"taxRate"`
	Currency          *string          `json:"currency" validate:"omitempty,len=3"`
	IssueDate         *time.Time       `json:"issueDate"`
	DueDate           *time.Time       `json:"dueDate"`
	ClearDueDate      bool             `json:"clearDueDate"`
	Notes             *string          `json:"notes" validate:"omitempty,max=5000"`
	Terms             *string          `json:"terms" validate:"omitempty,max=5000"`
	TemplateStyle     *string          `json:"templateStyle" validate:"omitempty,max=50"`
	PaymentMethods    []string         `json:"paymentMethods" validate:"dive,oneof=cash bank_transfer card crypto check manual other"`
	IsRecurring       *bool            `json:"isRecurring"`
	RecurringInterval *Interval        `json:"recurringInterval" validate:"omitempty,oneof=weekly monthly quarterly yearly"`
	RecurringEndDate  *time.Time       `json:"recurringEndDate"`
}

// ListRequest filters invoices of an organization.
type ListRequest struct {
	OrganizationID uuid.UUID
	Status         Status
	CustomerID     *uuid.UUID
	Recurring      *bool
	Search         string
	Limit          int
	Offset         int
}

// Totals aggregates open and collected amounts.
type Totals struct {
	Outstanding decimal.Decimal `json:"outstanding"`
	Overdue     decimal.Decimal `json:"overdue"`
	Collected   decimal.Decimal `json:"collected"`
}

// Summary feeds the dashboard.
type Summary struct {
	Counts map[Status]int `json:"counts"`
	Totals Totals         `json:"totals"`
	Recent []Invoice      `json:"recent"`
}

// PublicInvoice is the unauthenticated projection served by public links.
type PublicInvoice struct {
	InvoiceNumber    string          `json:"invoiceNumber"`
	Status           Status          `json:"status"`
	OrganizationName string          `json:"organizationName"`
	CustomerName     string          `json:"customerName"`
	Currency         string          `json:"currency"`
	LineItems        []LineItem      `json:"lineItems"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxRate          decimal.Decimal `json:"taxRate"`
	TaxAmount        decimal.Decimal `json:"taxAmount"`
	Total            decimal.Decimal `json:"total"`
	AmountPaid       decimal.Decimal `json:"amountPaid"`
	AmountDue        decimal.Decimal `json:"amountDue"`
	IssueDate        time.Time       `json:"issueDate"`
	DueDate          *time.Time      `json:"dueDate,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Terms            string          `json:"terms,omitempty"`
	TemplateStyle    string          `json:"templateStyle,omitempty"`
	PaymentMethods   []string        `json:"paymentMethods,omitempty"`
	ChainRequestID   string          `json:"chainRequestId,omitempty"`
}

// Project builds the public projection of inv.
func Project(inv Invoice, organizationName, customerName string) PublicInvoice {
	return PublicInvoice{
		InvoiceNumber:    inv.InvoiceNumber,
		Status:           inv.Status,
		OrganizationName: organizationName,
		CustomerName:     customerName,
		Currency:         inv.Currency,
		LineItems:        inv.LineItems,
		Subtotal:         inv.Subtotal,
		TaxRate:          inv.TaxRate,
		TaxAmount:        inv.TaxAmount,
		Total:            inv.Total,
		AmountPaid:       inv.AmountPaid,
		AmountDue:        inv.AmountDue,
		IssueDate:        inv.IssueDate,
		DueDate:          inv.DueDate,
		Notes:            inv.Notes,
		Terms:            inv.Terms,
		TemplateStyle:    inv.TemplateStyle,
		PaymentMethods:   inv.PaymentMethods,
		ChainRequestID:   inv.ChainRequestID,
	}
}

// Result is returned by mutations that can carry collaborator warnings.
type Result struct {
	Invoice  Invoice          `json:"invoice"`
	Warnings []shared.Warning `json:"warnings,omitempty"`
}
