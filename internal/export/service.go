package export

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
)

// InvoiceSource loads invoices for rendering. invoices.Service satisfies it.
type InvoiceSource interface {
	Get(ctx context.Context, orgID, id uuid.UUID) (invoices.Invoice, error)
	GetPublic(ctx context.Context, publicID string) (invoices.Invoice, error)
}

// Document is a rendered invoice ready for download.
type Document struct {
	Filename string
	Content  []byte
}

// Service resolves invoices and renders them.
type Service struct {
	source    InvoiceSource
	orgs      invoices.OrganizationReader
	customers invoices.CustomerReader
	renderer  Renderer
	logger    *slog.Logger
}

// NewService constructs a Service.
func NewService(source InvoiceSource, orgs invoices.OrganizationReader, customers invoices.CustomerReader, renderer Renderer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, orgs: orgs, customers: customers, renderer: renderer, logger: logger}
}

// Invoice renders an invoice owned by orgID.
func (s *Service) Invoice(ctx context.Context, orgID, id uuid.UUID) (Document, error) {
	inv, err := s.source.Get(ctx, orgID, id)
	if err != nil {
		return Document{}, err
	}
	return s.render(ctx, inv)
}

// Public renders the invoice behind a share link. Drafts are not reachable.
// Unlike the public JSON view this does not mark the invoice viewed.
func (s *Service) Public(ctx context.Context, publicID string) (Document, error) {
	inv, err := s.source.GetPublic(ctx, publicID)
	if err != nil {
		return Document{}, err
	}
	return s.render(ctx, inv)
}

func (s *Service) render(ctx context.Context, inv invoices.Invoice) (Document, error) {
	var orgName, customerName string
	if org, err := s.orgs.Get(ctx, inv.OrganizationID); err == nil {
		orgName = org.Name
	}
	if c, err := s.customers.Get(ctx, inv.OrganizationID, inv.CustomerID); err == nil {
		customerName = c.Name
	}
	content, err := s.renderer.Render(ctx, invoices.Project(inv, orgName, customerName))
	if err != nil {
		s.logger.Error("render invoice pdf",
			slog.String("invoice_id", inv.ID.String()),
			slog.Any("error", err))
		return Document{}, err
	}
	return Document{Filename: Filename(inv.InvoiceNumber), Content: content}, nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename derives a download name from an invoice number.
func Filename(number string) string {
	clean := unsafeFilename.ReplaceAllString(number, "_")
	if clean == "" {
		clean = "invoice"
	}
	return clean + ".pdf"
}
