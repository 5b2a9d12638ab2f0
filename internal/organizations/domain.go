package organizations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultInvoicePrefix is used when an organization does not pick one.
const DefaultInvoicePrefix = "INV"

// Organization owns customers, invoices and the invoice number sequence.
type Organization struct {
	ID                    uuid.UUID       `json:"id"`
	OwnerUserID           uuid.UUID       `json:"ownerUserId"`
	Name                  string          `json:"name"`
	Currency              string          `json:"currency"`
	InvoicePrefix         string          `json:"invoicePrefix"`
	InvoiceNumberSequence int64           `json:"invoiceNumberSequence"`
	DefaultTaxRate        decimal.Decimal `json:"defaultTaxRate"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// CreateInput carries the fields accepted when an account creates its organization.
type CreateInput struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	InvoicePrefix  string          `json:"invoicePrefix" validate:"omitempty,max=20"`
	DefaultTaxRate decimal.Decimal `json:"defaultTaxRate"`
}

// SettingsInput is a partial update of organization settings.
type SettingsInput struct {
	Name                  *string          `json:"name" validate:"omitempty,max=200"`
	Currency              *string          `json:"currency" validate:"omitempty,len=3"`
	InvoicePrefix         *string          `json:"invoicePrefix" validate:"omitempty,max=20"`
	DefaultTaxRate        *decimal.Decimal `json:"defaultTaxRate"`
	InvoiceNumberSequence *int64           `json:"invoiceNumberSequence"`
}
