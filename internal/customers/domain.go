package customers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceSettings is a customer's private invoice numbering sequence.
type InvoiceSettings struct {
	Prefix     string `json:"prefix"`
	NextNumber int64  `json:"nextNumber"`
}

// Enabled reports whether the override should be used for numbering.
func (s *InvoiceSettings) Enabled() bool {
	return s != nil && s.Prefix != "" && s.NextNumber > 0
}

// Customer is billed by an organization. Deleted customers stay in storage with IsActive=false.
type Customer struct {
	ID              uuid.UUID        `json:"id"`
	OrganizationID  uuid.UUID        `json:"organizationId"`
	Name            string           `json:"name"`
	Email           string           `json:"email"`
	Phone           string           `json:"phone,omitempty"`
	Company         string           `json:"company,omitempty"`
	Address         string           `json:"address,omitempty"`
	TaxID           string           `json:"taxId,omitempty"`
	WalletAddress   string           `json:"walletAddress,omitempty"`
	InvoiceSettings *InvoiceSettings `json:"invoiceSettings,omitempty"`
	TotalPaid       decimal.Decimal  `json:"totalPaid"`
	IsActive        bool             `json:"isActive"`
	DeletedAt       *time.Time       `json:"deletedAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// InvoiceSettingsInput configures the private numbering override.
type InvoiceSettingsInput struct {
	Prefix     string `json:"prefix" validate:"required,max=20"`
	NextNumber int64  `json:"nextNumber" validate:"min=1"`
}

// CreateInput carries a new customer.
type CreateInput struct {
	Name            string                `json:"name" validate:"required,max=200"`
	Email           string                `json:"email" validate:"required,email"`
	Phone           string                `json:"phone" validate:"omitempty,max=50"`
	Company         string                `json:"company" validate:"omitempty,max=200"`
	Address         string                `json:"address" validate:"omitempty,max=500"`
	TaxID           string                `json:"taxId" validate:"omitempty,max=50"`
	WalletAddress   string                `json:"walletAddress" validate:"omitempty,max=100"`
	InvoiceSettings *InvoiceSettingsInput `json:"invoiceSettings"`
}

// UpdateInput is a partial update. ClearInvoiceSettings removes the override.
type UpdateInput struct {
	Name                 *string               `json:"name" validate:"omitempty,max=200"`
	Email                *string               `json:"email" validate:"omitempty,email"`
	Phone                *string               `json:"phone" validate:"omitempty,max=50"`
	Company              *string               `json:"company" validate:"omitempty,max=200"`
	Address              *string               `json:"address" validate:"omitempty,max=500"`
	TaxID                *string               `json:"taxId" validate:"omitempty,max=50"`
	WalletAddress        *string               `json:"walletAddress" validate:"omitempty,max=100"`
	InvoiceSettings      *InvoiceSettingsInput `json:"invoiceSettings"`
	ClearInvoiceSettings bool                  `json:"clearInvoiceSettings"`
}

// ListRequest filters active customers of an organization.
type ListRequest struct {
	OrganizationID uuid.UUID
	Search         string
	Limit          int
	Offset         int
}
