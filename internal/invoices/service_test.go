package invoices_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Koushith/Web3-Invoice-sub000/internal/activity"
	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices/invoicetest"
	"github.com/Koushith/Web3-Invoice-sub000/internal/numbering"
	"github.com/Koushith/Web3-Invoice-sub000/internal/organizations"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, inv invoices.Invoice, email, publicURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, email+" "+publicURL)
	return nil
}

type fakeActivity struct {
	mu    sync.Mutex
	kinds []activity.Kind
}

func (a *fakeActivity) Record(ctx context.Context, e activity.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, e.Kind)
	return nil
}

// repoSettler pays the full amount due directly through the repository.
type repoSettler struct {
	repo *invoicetest.MemoryRepository
	now  time.Time
}

func (s repoSettler) Settle(ctx context.Context, orgID, id uuid.UUID) error {
	inv, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	inv.AmountPaid = inv.AmountPaid.Add(inv.AmountDue)
	return s.repo.Update(ctx, invoices.Recompute(inv, s.now))
}

type fixture struct {
	svc        *invoices.Service
	repo       *invoicetest.MemoryRepository
	dir        *invoicetest.Directory
	dispatcher *fakeDispatcher
	activity   *fakeActivity
	org        organizations.Organization
	customer   customers.Customer
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := invoicetest.NewMemoryRepository()
	dir := invoicetest.NewDirectory(repo)
	org := dir.AddOrganization(organizations.Organization{Name: "Wayne Enterprises", Currency: "USD", DefaultTaxRate: decimal.NewFromInt(10)})
	customer := dir.AddCustomer(customers.Customer{OrganizationID: org.ID, Name: "Bruce", Email: "bruce@wayne.com"})

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := invoices.NewService(repo, numbering.NewAllocator(dir), dir, dir.Customers(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return now })
	svc.SetPublicURL("https://pay.example.com/")
	dispatcher := &fakeDispatcher{}
	svc.SetDispatcher(dispatcher)
	act := &fakeActivity{}
	svc.SetActivity(act)
	svc.SetSettler(repoSettler{repo: repo, now: now})
	return &fixture{svc: svc, repo: repo, dir: dir, dispatcher: dispatcher, activity: act, org: org, customer: customer, now: now}
}

func scenarioInput(customerID uuid.UUID, send bool) invoices.CreateInput {
	return invoices.CreateInput{
		CustomerID: customerID,
		LineItems: []invoices.LineItemInput{
			{Description: "Design", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("50.00")},
			{Description: "Hosting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("100.00")},
		},
		Send: send,
	}
}

func TestCreateAndSendInvoice(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, true))
	require.NoError(t, err)
	inv := result.Invoice
	require.Empty(t, result.Warnings)
	require.Equal(t, "INV-0001", inv.InvoiceNumber)
	require.Equal(t, invoices.StatusSent, inv.Status)
	require.Equal(t, "USD", inv.Currency)
	require.Equal(t, "200.00", inv.Subtotal.StringFixed(2))
	require.Equal(t, "20.00", inv.TaxAmount.StringFixed(2))
	require.Equal(t, "220.00", inv.Total.StringFixed(2))
	require.Equal(t, "220.00", inv.AmountDue.StringFixed(2))
	require.NotEmpty(t, inv.PublicID)
	require.Equal(t, []string{"bruce@wayne.com https://pay.example.com/public/invoices/" + inv.PublicID}, f.dispatcher.sent)
	require.EqualValues(t, 2, f.dir.Organization(f.org.ID).InvoiceNumberSequence)
	require.Equal(t, []activity.Kind{activity.KindInvoiceCreated, activity.KindInvoiceSent}, f.activity.kinds)

	draft, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, false))
	require.NoError(t, err)
	require.Equal(t, invoices.StatusDraft, draft.Invoice.Status)
	require.Equal(t, "INV-0002", draft.Invoice.InvoiceNumber)
	require.Empty(t, draft.Invoice.PublicID)
	require.Len(t, f.dispatcher.sent, 1)
}

func TestCreateUsesCustomerSequence(t *testing.T) {
	f := newFixture(t)
	acme := f.dir.AddCustomer(customers.Customer{
		OrganizationID:  f.org.ID,
		Name:            "Acme",
		Email:           "billing@acme.test",
		InvoiceSettings: &customers.InvoiceSettings{Prefix: "ACME", NextNumber: 7},
	})
	result, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(acme.ID, false))
	require.NoError(t, err)
	require.Equal(t, "ACME-007", result.Invoice.InvoiceNumber)
	require.EqualValues(t, 1, f.dir.Organization(f.org.ID).InvoiceNumberSequence)
}

func TestCreateSkipsNumbersIssuedByAnotherOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := f.svc.Create(ctx, f.org.ID, scenarioInput(f.customer.ID, false))
		require.NoError(t, err)
	}

	other := f.dir.AddOrganization(organizations.Organization{Name: "Stark Industries", Currency: "USD"})
	tony := f.dir.AddCustomer(customers.Customer{OrganizationID: other.ID, Name: "Tony", Email: "tony@stark.com"})
	require.Equal(t, f.org.InvoicePrefix, other.InvoicePrefix)

	result, err := f.svc.Create(ctx, other.ID, scenarioInput(tony.ID, false))
	require.NoError(t, err)
	require.Equal(t, "INV-0013", result.Invoice.InvoiceNumber)
	require.EqualValues(t, 14, f.dir.Organization(other.ID).InvoiceNumberSequence)

	result, err = f.svc.Create(ctx, other.ID, scenarioInput(tony.ID, false))
	require.NoError(t, err)
	require.Equal(t, "INV-0014", result.Invoice.InvoiceNumber)
}

func TestCreateWithTakenExplicitNumber(t *testing.T) {
	f := newFixture(t)
	input := scenarioInput(f.customer.ID, false)
	input.InvoiceNumber = "ACME-001"
	_, err := f.svc.Create(context.Background(), f.org.ID, input)
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), f.org.ID, input)
	require.ErrorIs(t, err, numbering.ErrDuplicateInvoiceNumber)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, f.repo.All(), 1)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	input := scenarioInput(f.customer.ID, false)
	input.LineItems[0].Quantity = decimal.Zero
	_, err := f.svc.Create(context.Background(), f.org.ID, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = scenarioInput(f.customer.ID, true)
	input.LineItems = nil
	_, err = f.svc.Create(context.Background(), f.org.ID, input)
	require.ErrorIs(t, err, invoices.ErrNoLineItems)

	_, err = f.svc.Create(context.Background(), f.org.ID, scenarioInput(uuid.New(), false))
	require.ErrorIs(t, err, customers.ErrCustomerNotFound)

	require.Empty(t, f.repo.All())
	require.EqualValues(t, 1, f.dir.Organization(f.org.ID).InvoiceNumberSequence)
}

func TestSendNotificationFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("smtp: connection refused")

	created, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, false))
	require.NoError(t, err)

	result, err := f.svc.Send(context.Background(), f.org.ID, created.Invoice.ID)
	require.NoError(t, err)
	require.Equal(t, invoices.StatusSent, result.Invoice.Status)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, "notification", result.Warnings[0].Kind)

	stored, _ := f.repo.Find(created.Invoice.ID)
	require.Equal(t, invoices.StatusSent, stored.Status)
	require.Contains(t, f.activity.kinds, activity.KindNotificationFailed)
}

func TestEditPaidInvoiceLeavesItUnchanged(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, true))
	require.NoError(t, err)
	paid, err := f.svc.MarkPaid(context.Background(), f.org.ID, created.Invoice.ID)
	require.NoError(t, err)
	require.Equal(t, invoices.StatusPaid, paid.Status)
	before, _ := f.repo.Find(paid.ID)

	_, err = f.svc.Update(context.Background(), f.org.ID, paid.ID, invoices.UpdateInput{
		LineItems: []invoices.LineItemInput{{Description: "Extra", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)}},
	})
	require.ErrorIs(t, err, invoices.ErrInvoiceAlreadyPaid)
	after, _ := f.repo.Find(paid.ID)
	require.Equal(t, before, after)

	_, err = f.svc.Cancel(context.Background(), f.org.ID, paid.ID)
	require.ErrorIs(t, err, invoices.ErrInvoiceAlreadyPaid)
}

func TestMarkPaidSettlesRemainder(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, false))
	require.NoError(t, err)

	inv, err := f.svc.MarkPaid(context.Background(), f.org.ID, created.Invoice.ID)
	require.NoError(t, err)
	require.Equal(t, invoices.StatusPaid, inv.Status)
	require.True(t, inv.AmountPaid.Equal(inv.Total))
	require.True(t, inv.AmountDue.IsZero())
	require.NotNil(t, inv.PaidAt)

	_, err = f.svc.MarkPaid(context.Background(), f.org.ID, created.Invoice.ID)
	require.ErrorIs(t, err, invoices.ErrInvoiceAlreadyPaid)
}

func TestViewPublicRecordsFirstView(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, true))
	require.NoError(t, err)

	view, err := f.svc.ViewPublic(context.Background(), created.Invoice.PublicID)
	require.NoError(t, err)
	require.Equal(t, invoices.StatusViewed, view.Status)
	require.Equal(t, "Wayne Enterprises", view.OrganizationName)
	require.Equal(t, "Bruce", view.CustomerName)
	require.Equal(t, "220.00", view.Total.StringFixed(2))

	stored, _ := f.repo.Find(created.Invoice.ID)
	require.NotNil(t, stored.ViewedAt)
	viewedAt := *stored.ViewedAt

	_, err = f.svc.ViewPublic(context.Background(), created.Invoice.PublicID)
	require.NoError(t, err)
	stored, _ = f.repo.Find(created.Invoice.ID)
	require.True(t, stored.ViewedAt.Equal(viewedAt))

	_, err = f.svc.ViewPublic(context.Background(), "missing")
	require.ErrorIs(t, err, invoices.ErrInvoiceNotFound)
}

func TestMutationRetriesLostCompareAndSet(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, false))
	require.NoError(t, err)

	f.repo.Conflicts = 2
	notes := "net 30"
	inv, err := f.svc.Update(context.Background(), f.org.ID, created.Invoice.ID, invoices.UpdateInput{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, "net 30", inv.Notes)
	require.EqualValues(t, 2, inv.Version)

	f.repo.Conflicts = 100
	_, err = f.svc.Update(context.Background(), f.org.ID, created.Invoice.ID, invoices.UpdateInput{Notes: &notes})
	require.ErrorIs(t, err, invoices.ErrConcurrentUpdate)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	sent, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, true))
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, false))
	require.NoError(t, err)
	paid, err := f.svc.Create(context.Background(), f.org.ID, scenarioInput(f.customer.ID, true))
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(context.Background(), f.org.ID, paid.Invoice.ID)
	require.NoError(t, err)

	summary, err := f.svc.Summary(context.Background(), f.org.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Counts[invoices.StatusSent])
	require.Equal(t, 1, summary.Counts[invoices.StatusDraft])
	require.Equal(t, 1, summary.Counts[invoices.StatusPaid])
	require.Equal(t, sent.Invoice.AmountDue.StringFixed(2), summary.Totals.Outstanding.StringFixed(2))
	require.Equal(t, "220.00", summary.Totals.Collected.StringFixed(2))
	require.Len(t, summary.Recent, 3)
}
