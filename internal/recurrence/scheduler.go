package recurrence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/activity"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/numbering"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

const (
	defaultBatchSize = 100
	defaultLockTTL   = 30 * time.Minute
)

// errNotDue aborts a generation whose parent was advanced by someone else.
var errNotDue = errors.New("recurring invoice not due")

// Summary reports one run.
type Summary struct {
	Scanned   int `json:"scanned"`
	Seeded    int `json:"seeded"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
	Notified  int `json:"notified"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSeeded
	outcomeGenerated
)

// Scheduler scans recurring invoices and issues the children that are due.
type Scheduler struct {
	repo       invoices.Repository
	numbers    *numbering.Allocator
	customers  invoices.CustomerReader
	dispatcher invoices.Dispatcher
	activity   activity.Recorder
	redis      *redis.Client
	logger     *slog.Logger
	publicURL  func(invoices.Invoice) string
	now        func() time.Time
	batchSize  int
	lockTTL    time.Duration
}

// NewScheduler constructs a Scheduler.
func NewScheduler(repo invoices.Repository, numbers *numbering.Allocator, customers invoices.CustomerReader, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		repo:      repo,
		numbers:   numbers,
		customers: customers,
		logger:    logger,
		publicURL: func(invoices.Invoice) string { return "" },
		now:       func() time.Time { return time.Now().UTC() },
		batchSize: defaultBatchSize,
		lockTTL:   defaultLockTTL,
	}
}

// WithNow overrides the clock.
func (s *Scheduler) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetRedis enables the run lock.
func (s *Scheduler) SetRedis(client *redis.Client) { s.redis = client }

// SetDispatcher wires notifications for generated invoices.
func (s *Scheduler) SetDispatcher(d invoices.Dispatcher) { s.dispatcher = d }

// SetActivity wires the activity feed.
func (s *Scheduler) SetActivity(r activity.Recorder) { s.activity = r }

// SetPublicURL sets how share links are built.
func (s *Scheduler) SetPublicURL(fn func(invoices.Invoice) string) {
	if fn != nil {
		s.publicURL = fn
	}
}

// SetBatchSize bounds how many parents are loaded per page.
func (s *Scheduler) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Run processes every candidate once. A failing parent is logged and counted
// and does not stop the run. It returns shared.ErrLockHeld when another run
// is in progress.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if s.redis != nil {
		lock, err := shared.AcquireRunLock(ctx, s.redis, shared.RecurrenceLockKey(), s.lockTTL)
		if err != nil {
			return summary, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release recurrence lock", slog.Any("error", err))
			}
		}()
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	after := uuid.Nil
	for {
		batch, err := s.repo.ListRecurring(ctx, today, after, s.batchSize)
		if err != nil {
			return summary, err
		}
		for _, parent := range batch {
			after = parent.ID
			summary.Scanned++
			result, child, err := s.process(ctx, parent, now)
			if err != nil {
				summary.Failed++
				s.logger.Error("recurring invoice failed",
					slog.String("invoice_id", parent.ID.String()),
					slog.String("invoice_number", parent.InvoiceNumber),
					slog.Any("error", err))
				continue
			}
			switch result {
			case outcomeSeeded:
				summary.Seeded++
			case outcomeGenerated:
				summary.Generated++
				s.record(ctx, child, "Recurring invoice "+child.InvoiceNumber+" generated from "+parent.InvoiceNumber)
				if s.notify(ctx, child) {
					summary.Notified++
				}
			}
		}
		if len(batch) < s.batchSize {
			break
		}
	}
	s.logger.Info("recurrence run finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("seeded", summary.Seeded),
		slog.Int("generated", summary.Generated),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

func (s *Scheduler) process(ctx context.Context, parent invoices.Invoice, now time.Time) (outcome, invoices.Invoice, error) {
	due, err := nextDue(parent)
	if err != nil {
		return outcomeSkipped, invoices.Invoice{}, err
	}
	if due.After(now) {
		if parent.NextRecurringAt != nil {
			return outcomeSkipped, invoices.Invoice{}, nil
		}
		return outcomeSeeded, invoices.Invoice{}, s.seed(ctx, parent, due, now)
	}
	if parent.RecurringEndDate != nil && due.After(*parent.RecurringEndDate) {
		return outcomeSkipped, invoices.Invoice{}, nil
	}

	var child invoices.Invoice
	_, err = s.numbers.SeriesAndCreate(ctx, parent.InvoiceNumber, func(ctx context.Context, number string) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx invoices.TxRepository) error {
			cur, err := tx.Get(ctx, parent.OrganizationID, parent.ID)
			if err != nil {
				return err
			}
			if !cur.IsRecurring || cur.Status == invoices.StatusCancelled {
				return errNotDue
			}
			if due, err := nextDue(cur); err != nil || due.After(now) {
				return errNotDue
			}
			child = newChild(cur, number, now)
			if err := tx.Insert(ctx, child); err != nil {
				return err
			}
			next, err := Advance(now, cur.RecurringInterval)
			if err != nil {
				return err
			}
			last := now
			cur.LastRecurringAt = &last
			cur.NextRecurringAt = &next
			cur.UpdatedAt = now
			return tx.Update(ctx, cur)
		})
	})
	if errors.Is(err, errNotDue) {
		return outcomeSkipped, invoices.Invoice{}, nil
	}
	if err != nil {
		return outcomeSkipped, invoices.Invoice{}, err
	}
	return outcomeGenerated, child, nil
}

// seed stores the first computed due date so later runs read it directly.
func (s *Scheduler) seed(ctx context.Context, parent invoices.Invoice, dueAt, now time.Time) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx invoices.TxRepository) error {
		cur, err := tx.Get(ctx, parent.OrganizationID, parent.ID)
		if err != nil {
			return err
		}
		if cur.NextRecurringAt != nil {
			return nil
		}
		cur.NextRecurringAt = &dueAt
		cur.UpdatedAt = now
		return tx.Update(ctx, cur)
	})
}

func nextDue(inv invoices.Invoice) (time.Time, error) {
	if inv.NextRecurringAt != nil {
		return *inv.NextRecurringAt, nil
	}
	base := inv.CreatedAt
	if inv.LastRecurringAt != nil {
		base = *inv.LastRecurringAt
	}
	return Advance(base, inv.RecurringInterval)
}

// newChild copies the billable content of parent into a freshly issued invoice.
// The child keeps the parent's payment term: its due date sits as many days
// after issue as the parent's did.
func newChild(parent invoices.Invoice, number string, now time.Time) invoices.Invoice {
	items := make([]invoices.LineItem, len(parent.LineItems))
	copy(items, parent.LineItems)
	sent := now
	parentID := parent.ID
	child := invoices.Invoice{
		ID:              uuid.New(),
		OrganizationID:  parent.OrganizationID,
		CustomerID:      parent.CustomerID,
		InvoiceNumber:   number,
		PublicID:        invoices.NewPublicID(),
		Status:          invoices.StatusSent,
		Currency:        parent.Currency,
		LineItems:       items,
		TaxRate:         parent.TaxRate,
		AmountPaid:      decimal.Zero,
		IssueDate:       now,
		Notes:           parent.Notes,
		Terms:           parent.Terms,
		TemplateStyle:   parent.TemplateStyle,
		PaymentMethods:  append([]string(nil), parent.PaymentMethods...),
		SentAt:          &sent,
		ParentInvoiceID: &parentID,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if parent.DueDate != nil {
		due := now.Add(parent.DueDate.Sub(parent.IssueDate))
		child.DueDate = &due
	}
	return invoices.Recompute(child, now)
}

func (s *Scheduler) notify(ctx context.Context, child invoices.Invoice) bool {
	if s.dispatcher == nil {
		return false
	}
	customer, err := s.customers.Get(ctx, child.OrganizationID, child.CustomerID)
	if err == nil {
		err = s.dispatcher.Dispatch(ctx, child, customer.Email, s.publicURL(child))
	}
	if err != nil {
		s.logger.Warn("recurring invoice notification failed",
			slog.String("invoice_id", child.ID.String()),
			slog.Any("error", err))
		return false
	}
	return true
}

func (s *Scheduler) record(ctx context.Context, child invoices.Invoice, message string) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, activity.Event{
		OrganizationID: child.OrganizationID,
		InvoiceID:      child.ID,
		Kind:           activity.KindRecurringGenerated,
		Message:        message,
	})
	if err != nil {
		s.logger.Warn("activity record failed", slog.String("invoice_id", child.ID.String()), slog.Any("error", err))
	}
}
