package payments

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Method is how the customer paid.
type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodCard         Method = "card"
	MethodCrypto       Method = "crypto"
	MethodCheck        Method = "check"
	MethodManual       Method = "manual"
	MethodOther        Method = "other"
)

// Status of a payment. Only completed payments count toward amount paid.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

var (
	ErrPaymentNotFound           = fmt.Errorf("payment not found: %w", shared.ErrNotFound)
	ErrAmountExceedsDue          = fmt.Errorf("payment amount exceeds amount due: %w", shared.ErrInvalidTransition)
	ErrAlreadyPaid               = fmt.Errorf("invoice is already paid: %w", shared.ErrInvalidTransition)
	ErrDuplicatePaymentReference = fmt.Errorf("payment reference already recorded: %w", shared.ErrConflict)
	ErrNotRefundable             = fmt.Errorf("only completed payments can be refunded: %w", shared.ErrInvalidTransition)
)

// Payment is a single settlement against an invoice.
type Payment struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	InvoiceID      uuid.UUID       `json:"invoiceId"`
	CustomerID     uuid.UUID       `json:"customerId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Method         Method          `json:"method"`
	Reference      string          `json:"reference,omitempty"`
	Status         Status          `json:"status"`
	ProcessedAt    time.Time       `json:"processedAt"`
	Notes          string          `json:"notes,omitempty"`
	RefundedAt     *time.Time      `json:"refundedAt,omitempty"`
	RefundReason   string          `json:"refundReason,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// RecordInput is the payload of a new payment.
type RecordInput struct {
	InvoiceID   uuid.UUID       `json:"invoiceId"`
	Amount      decimal.Decimal `json:"amount"`
	Method      Method          `json:"method" validate:"required,oneof=cash bank_transfer card crypto check manual other"`
	Reference   string          `json:"reference" validate:"max=128"`
	ProcessedAt *time.Time      `json:"processedAt"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

// RefundInput is the payload of a refund.
type RefundInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Result is a stored payment plus the invoice it settled.
type Result struct {
	Payment  Payment          `json:"payment"`
	Invoice  invoices.Invoice `json:"invoice"`
	Warnings []shared.Warning `json:"warnings,omitempty"`
}

// ListRequest filters payments of an organization.
type ListRequest struct {
	OrganizationID uuid.UUID
	InvoiceID      *uuid.UUID
	Status         Status
	Limit          int
	Offset         int
}
