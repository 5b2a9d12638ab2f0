package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Koushith/Web3-Invoice-sub000/internal/activity"
	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/numbering"
	"github.com/Koushith/Web3-Invoice-sub000/internal/organizations"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// ErrConcurrentUpdate is returned when an invoice keeps changing under a mutation.
var ErrConcurrentUpdate = fmt.Errorf("invoice is being modified concurrently, retry later: %w", shared.ErrConflict)

const (
	maxMutationAttempts = 5
	recentLimit         = 5
)

// OrganizationReader loads organizations.
type OrganizationReader interface {
	Get(ctx context.Context, id uuid.UUID) (organizations.Organization, error)
}

// CustomerReader loads customers.
type CustomerReader interface {
	Get(ctx context.Context, orgID, id uuid.UUID) (customers.Customer, error)
	GetActive(ctx context.Context, orgID, id uuid.UUID) (customers.Customer, error)
}

// Dispatcher delivers an issued invoice to the customer. A nil error means sent.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv Invoice, customerEmail, publicURL string) error
}

// Settler records the outstanding amount of an invoice as a payment.
type Settler interface {
	Settle(ctx context.Context, orgID, invoiceID uuid.UUID) error
}

// PaymentRequester registers an invoice with the external payment-reference recorder.
type PaymentRequester interface {
	CreateRequest(ctx context.Context, inv Invoice, payerWallet, payeeWallet string) (string, error)
}

// Service implements the invoice ledger operations.
type Service struct {
	repo       Repository
	numbers    *numbering.Allocator
	orgs       OrganizationReader
	customers  CustomerReader
	logger     *slog.Logger
	dispatcher Dispatcher
	activity   activity.Recorder
	settler    Settler
	requester  PaymentRequester
	publicURL  string
	views      singleflight.Group
	now        func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, numbers *numbering.Allocator, orgs OrganizationReader, customers CustomerReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		numbers:   numbers,
		orgs:      orgs,
		customers: customers,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetDispatcher wires the notification dispatcher.
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// SetActivity wires the activity feed.
func (s *Service) SetActivity(r activity.Recorder) { s.activity = r }

// SetSettler wires the payment recorder used by MarkPaid.
func (s *Service) SetSettler(settler Settler) { s.settler = settler }

// SetPaymentRequester wires the payment-reference recorder.
func (s *Service) SetPaymentRequester(r PaymentRequester) { s.requester = r }

// SetPublicURL sets the base of public invoice links.
func (s *Service) SetPublicURL(base string) { s.publicURL = strings.TrimRight(base, "/") }

// PublicURL returns the share link of inv, or "" before it was sent.
func (s *Service) PublicURL(inv Invoice) string {
	if inv.PublicID == "" {
		return ""
	}
	return s.publicURL + "/public/invoices/" + inv.PublicID
}

// Create builds, numbers and stores an invoice. With input.Send it is issued
// right away and the customer notified.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (Result, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Result{}, err
	}
	if input.CustomerID == uuid.Nil {
		return Result{}, shared.NewValidationError("customerId", "is required")
	}
	if input.IsRecurring && input.RecurringInterval == "" {
		return Result{}, shared.NewValidationError("recurringInterval", "is required for recurring invoices")
	}
	items, err := buildLineItems(input.LineItems)
	if err != nil {
		return Result{}, err
	}
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return Result{}, err
	}
	customer, err := s.customers.GetActive(ctx, orgID, input.CustomerID)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	inv := Invoice{
		ID:                uuid.New(),
		OrganizationID:    orgID,
		CustomerID:        customer.ID,
		Status:            StatusDraft,
		Currency:          strings.ToUpper(input.Currency),
		LineItems:         items,
		TaxRate:           org.DefaultTaxRate,
		AmountPaid:        decimal.Zero,
		IssueDate:         now,
		DueDate:           input.DueDate,
		Notes:             input.Notes,
		Terms:             input.Terms,
		TemplateStyle:     input.TemplateStyle,
		PaymentMethods:    input.PaymentMethods,
		IsRecurring:       input.IsRecurring,
		RecurringInterval: input.RecurringInterval,
		RecurringEndDate:  input.RecurringEndDate,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if inv.Currency == "" {
		inv.Currency = org.Currency
	}
	if input.IssueDate != nil {
		inv.IssueDate = *input.IssueDate
	}
	if input.TaxRate != nil {
		if err := validateTaxRate(*input.TaxRate); err != nil {
			return Result{}, err
		}
		inv.TaxRate = *input.TaxRate
	}
	if inv.DueDate != nil && inv.DueDate.Before(inv.IssueDate) {
		return Result{}, shared.NewValidationError("dueDate", "must not be before the issue date")
	}
	inv = Recompute(inv, now)
	if input.Send {
		if inv, err = Send(inv, now); err != nil {
			return Result{}, err
		}
	}

	req := numbering.Request{OrganizationID: orgID, CustomerID: &inv.CustomerID, Explicit: input.InvoiceNumber}
	_, err = s.numbers.AllocateAndCreate(ctx, req, func(ctx context.Context, number string) error {
		inv.InvoiceNumber = number
		return s.repo.Insert(ctx, inv)
	})
	if err != nil {
		return Result{}, err
	}

	s.record(ctx, inv, activity.KindInvoiceCreated, "Invoice "+inv.InvoiceNumber+" created", nil)
	result := Result{Invoice: inv}
	if inv.Status != StatusDraft {
		s.record(ctx, inv, activity.KindInvoiceSent, "Invoice "+inv.InvoiceNumber+" sent", nil)
		if w := s.notify(ctx, inv, customer.Email); w != nil {
			result.Warnings = append(result.Warnings, *w)
		}
	}
	return result, nil
}

// Get loads an invoice of the organization.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (Invoice, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns invoices matching req.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Invoice, int, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, 0, shared.NewValidationError("status", "unknown status")
	}
	return s.repo.List(ctx, req)
}

// Update edits an unpaid, uncancelled invoice.
func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, input UpdateInput) (Invoice, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Invoice{}, err
	}
	inv, err := s.mutate(ctx, orgID, id, func(inv Invoice, now time.Time) (Invoice, bool, error) {
		out, err := ApplyEdit(inv, input, now)
		return out, err == nil, err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, inv, activity.KindInvoiceUpdated, "Invoice "+inv.InvoiceNumber+" updated", nil)
	return inv, nil
}

// Send issues the invoice and dispatches the notification. Delivery failures
// come back as warnings; the transition is already stored.
func (s *Service) Send(ctx context.Context, orgID, id uuid.UUID) (Result, error) {
	inv, err := s.mutate(ctx, orgID, id, func(inv Invoice, now time.Time) (Invoice, bool, error) {
		out, err := Send(inv, now)
		return out, err == nil, err
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, inv, activity.KindInvoiceSent, "Invoice "+inv.InvoiceNumber+" sent", nil)
	result := Result{Invoice: inv}
	customer, err := s.customers.Get(ctx, orgID, inv.CustomerID)
	if err != nil {
		w := shared.ExternalWarning("notification", err)
		result.Warnings = append(result.Warnings, w)
		return result, nil
	}
	if w := s.notify(ctx, inv, customer.Email); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}
	return result, nil
}

// ViewPublic serves the public projection and records the first view.
// Concurrent reads of the same link share one lookup.
func (s *Service) ViewPublic(ctx context.Context, publicID string) (PublicInvoice, error) {
	if strings.TrimSpace(publicID) == "" {
		return PublicInvoice{}, ErrInvoiceNotFound
	}
	v, err, _ := s.views.Do(publicID, func() (any, error) {
		inv, err := s.repo.GetByPublicID(ctx, publicID)
		if err != nil {
			return nil, err
		}
		if inv.Status == StatusDraft {
			return nil, ErrInvoiceNotFound
		}
		if inv.Status == StatusSent {
			var changed bool
			viewed, err := s.mutate(ctx, inv.OrganizationID, inv.ID, func(cur Invoice, now time.Time) (Invoice, bool, error) {
				var out Invoice
				out, changed = View(cur, now)
				return out, changed, nil
			})
			if err != nil {
				return nil, err
			}
			if changed {
				s.record(ctx, viewed, activity.KindInvoiceViewed, "Invoice "+viewed.InvoiceNumber+" viewed", nil)
			}
			inv = viewed
		}
		return s.project(ctx, inv), nil
	})
	if err != nil {
		return PublicInvoice{}, err
	}
	return v.(PublicInvoice), nil
}

// GetPublic loads an issued invoice by its public id without recording a view.
func (s *Service) GetPublic(ctx context.Context, publicID string) (Invoice, error) {
	inv, err := s.repo.GetByPublicID(ctx, publicID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status == StatusDraft {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) project(ctx context.Context, inv Invoice) PublicInvoice {
	var orgName, customerName string
	if org, err := s.orgs.Get(ctx, inv.OrganizationID); err == nil {
		orgName = org.Name
	}
	if c, err := s.customers.Get(ctx, inv.OrganizationID, inv.CustomerID); err == nil {
		customerName = c.Name
	}
	return Project(inv, orgName, customerName)
}

// MarkPaid settles the remaining amount as a manual payment and closes the invoice.
func (s *Service) MarkPaid(ctx context.Context, orgID, id uuid.UUID) (Invoice, error) {
	inv, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return Invoice{}, err
	}
	switch inv.Status {
	case StatusPaid:
		return Invoice{}, ErrInvoiceAlreadyPaid
	case StatusCancelled:
		return Invoice{}, ErrInvoiceCancelled
	}
	if inv.AmountDue.Sign() > 0 {
		if s.settler == nil {
			return Invoice{}, ErrAmountOutstanding
		}
		if err := s.settler.Settle(ctx, orgID, id); err != nil {
			return Invoice{}, err
		}
	}
	inv, err = s.mutate(ctx, orgID, id, func(cur Invoice, now time.Time) (Invoice, bool, error) {
		if cur.Status == StatusPaid {
			return cur, false, nil
		}
		out, err := MarkPaid(cur, now)
		return out, err == nil, err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, inv, activity.KindInvoicePaid, "Invoice "+inv.InvoiceNumber+" marked as paid", nil)
	return inv, nil
}

// Cancel voids the invoice. Cancelled invoices stay readable.
func (s *Service) Cancel(ctx context.Context, orgID, id uuid.UUID) (Invoice, error) {
	inv, err := s.mutate(ctx, orgID, id, func(cur Invoice, now time.Time) (Invoice, bool, error) {
		if cur.Status == StatusCancelled {
			return cur, false, nil
		}
		out, err := Cancel(cur, now)
		return out, err == nil, err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, inv, activity.KindInvoiceCancelled, "Invoice "+inv.InvoiceNumber+" cancelled", nil)
	return inv, nil
}

// RefreshStatus re-derives the status at the current time and persists it
// when it changed. It reports whether a write happened.
func (s *Service) RefreshStatus(ctx context.Context, orgID, id uuid.UUID) (Invoice, bool, error) {
	var changed bool
	inv, err := s.mutate(ctx, orgID, id, func(cur Invoice, now time.Time) (Invoice, bool, error) {
		out := Recompute(cur, now)
		changed = out.Status != cur.Status
		if changed {
			out.UpdatedAt = now
		}
		return out, changed, nil
	})
	if err != nil {
		return Invoice{}, false, err
	}
	if changed && inv.Status == StatusOverdue {
		s.record(ctx, inv, activity.KindInvoiceOverdue, "Invoice "+inv.InvoiceNumber+" is overdue", nil)
	}
	return inv, changed, nil
}

// AppendNote adds a line to the invoice notes without touching money or status.
func (s *Service) AppendNote(ctx context.Context, orgID, id uuid.UUID, note string) (Invoice, error) {
	note = strings.TrimSpace(note)
	return s.mutate(ctx, orgID, id, func(cur Invoice, now time.Time) (Invoice, bool, error) {
		if note == "" {
			return cur, false, nil
		}
		if cur.Notes == "" {
			cur.Notes = note
		} else {
			cur.Notes = cur.Notes + "\n" + note
		}
		cur.UpdatedAt = now
		return cur, true, nil
	})
}

// AttachPaymentRequest registers the invoice with the payment-reference
// recorder and stores the returned request id.
func (s *Service) AttachPaymentRequest(ctx context.Context, orgID, id uuid.UUID, payeeWallet string) (Invoice, error) {
	if s.requester == nil {
		return Invoice{}, fmt.Errorf("payment-reference recorder not configured: %w", shared.ErrExternalService)
	}
	if strings.TrimSpace(payeeWallet) == "" {
		return Invoice{}, shared.NewValidationError("payeeWallet", "is required")
	}
	inv, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return Invoice{}, err
	}
	if !inv.Payable() {
		if inv.Status == StatusPaid {
			return Invoice{}, ErrInvoiceAlreadyPaid
		}
		return Invoice{}, ErrInvoiceCancelled
	}
	customer, err := s.customers.Get(ctx, orgID, inv.CustomerID)
	if err != nil {
		return Invoice{}, err
	}
	if customer.WalletAddress == "" {
		return Invoice{}, shared.NewValidationError("customer.walletAddress", "customer has no wallet address")
	}
	requestID, err := s.requester.CreateRequest(ctx, inv, customer.WalletAddress, payeeWallet)
	if err != nil {
		if errors.Is(err, shared.ErrExternalService) {
			return Invoice{}, err
		}
		return Invoice{}, fmt.Errorf("create payment request: %v: %w", err, shared.ErrExternalService)
	}
	return s.mutate(ctx, orgID, id, func(cur Invoice, now time.Time) (Invoice, bool, error) {
		cur.ChainRequestID = requestID
		cur.UpdatedAt = now
		return cur, true, nil
	})
}

// Summary aggregates dashboard figures. The queries run concurrently.
func (s *Service) Summary(ctx context.Context, orgID uuid.UUID) (Summary, error) {
	var summary Summary
	now := s.now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.StatusCounts(gctx, orgID)
		summary.Counts = counts
		return err
	})
	g.Go(func() error {
		totals, err := s.repo.Totals(gctx, orgID, now)
		summary.Totals = totals
		return err
	})
	g.Go(func() error {
		recent, _, err := s.repo.List(gctx, ListRequest{OrganizationID: orgID, Limit: recentLimit})
		summary.Recent = recent
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	if summary.Counts == nil {
		summary.Counts = map[Status]int{}
	}
	if summary.Recent == nil {
		summary.Recent = []Invoice{}
	}
	return summary, nil
}

// mutate loads, transforms and compare-and-sets an invoice, retrying when a
// concurrent writer wins. fn reports whether a write is needed.
func (s *Service) mutate(ctx context.Context, orgID, id uuid.UUID, fn func(Invoice, time.Time) (Invoice, bool, error)) (Invoice, error) {
	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		cur, err := s.repo.Get(ctx, orgID, id)
		if err != nil {
			return Invoice{}, err
		}
		next, write, err := fn(cur, s.now())
		if err != nil {
			return Invoice{}, err
		}
		if !write {
			return next, nil
		}
		next.Version = cur.Version
		err = s.repo.Update(ctx, next)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Invoice{}, err
		}
		next.Version++
		return next, nil
	}
	return Invoice{}, ErrConcurrentUpdate
}

func (s *Service) notify(ctx context.Context, inv Invoice, email string) *shared.Warning {
	if s.dispatcher == nil {
		return nil
	}
	if err := s.dispatcher.Dispatch(ctx, inv, email, s.PublicURL(inv)); err != nil {
		s.logger.Warn("invoice notification failed",
			slog.String("invoice_id", inv.ID.String()),
			slog.Any("error", err))
		s.record(ctx, inv, activity.KindNotificationFailed, "Notification for "+inv.InvoiceNumber+" failed", map[string]any{"error": err.Error()})
		w := shared.ExternalWarning("notification", err)
		return &w
	}
	return nil
}

// record appends to the activity feed. Failures are logged only.
func (s *Service) record(ctx context.Context, inv Invoice, kind activity.Kind, message string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, activity.Event{
		OrganizationID: inv.OrganizationID,
		InvoiceID:      inv.ID,
		Kind:           kind,
		Message:        message,
		Meta:           meta,
	})
	if err != nil {
		s.logger.Warn("activity record failed",
			slog.String("invoice_id", inv.ID.String()),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
	}
}
