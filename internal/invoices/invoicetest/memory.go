// Package invoicetest provides in-memory fakes for invoice consumers' tests.
package invoicetest

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/numbering"
	"github.com/Koushith/Web3-Invoice-sub000/internal/organizations"
)

// MemoryRepository implements invoices.Repository with compare-and-set
// semantics on Version.
type MemoryRepository struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	invoices map[uuid.UUID]invoices.Invoice

	// Conflicts makes the next n Update calls fail with ErrVersionConflict.
	Conflicts int
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{invoices: make(map[uuid.UUID]invoices.Invoice)}
}

// Put stores inv unconditionally.
func (r *MemoryRepository) Put(inv invoices.Invoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.ID] = clone(inv)
}

// Find returns the stored invoice by id regardless of organization.
func (r *MemoryRepository) Find(id uuid.UUID) (invoices.Invoice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	return clone(inv), ok
}

// All returns every stored invoice.
func (r *MemoryRepository) All() []invoices.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]invoices.Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		out = append(out, clone(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out
}

// WithTx serializes transactions and restores the previous state when fn fails.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, invoices.TxRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	snapshot := make(map[uuid.UUID]invoices.Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		snapshot[id] = inv
	}
	r.mu.Unlock()
	if err := fn(ctx, memoryTx{r: r}); err != nil {
		r.mu.Lock()
		r.invoices = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *MemoryRepository) Insert(ctx context.Context, inv invoices.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(inv)
}

func (r *MemoryRepository) Get(ctx context.Context, orgID, id uuid.UUID) (invoices.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(orgID, id)
}

func (r *MemoryRepository) Update(ctx context.Context, inv invoices.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(inv)
}

func (r *MemoryRepository) GetByPublicID(ctx context.Context, publicID string) (invoices.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.PublicID != "" && inv.PublicID == publicID {
			return clone(inv), nil
		}
	}
	return invoices.Invoice{}, invoices.ErrInvoiceNotFound
}

func (r *MemoryRepository) GetByChainRequestID(ctx context.Context, requestID string) (invoices.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if requestID != "" && inv.ChainRequestID == requestID {
			return clone(inv), nil
		}
	}
	return invoices.Invoice{}, invoices.ErrInvoiceNotFound
}

func (r *MemoryRepository) List(ctx context.Context, req invoices.ListRequest) ([]invoices.Invoice, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invoices.Invoice
	for _, inv := range r.invoices {
		if inv.OrganizationID != req.OrganizationID {
			continue
		}
		if req.Status != "" && inv.Status != req.Status {
			continue
		}
		if req.CustomerID != nil && inv.CustomerID != *req.CustomerID {
			continue
		}
		if req.Recurring != nil && inv.IsRecurring != *req.Recurring {
			continue
		}
		if req.Search != "" && !strings.Contains(strings.ToLower(inv.InvoiceNumber), strings.ToLower(req.Search)) {
			continue
		}
		out = append(out, clone(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssueDate.Equal(out[j].IssueDate) {
			return out[i].IssueDate.After(out[j].IssueDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	total := len(out)
	if req.Offset > 0 {
		if req.Offset >= len(out) {
			out = nil
		} else {
			out = out[req.Offset:]
		}
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, total, nil
}

func (r *MemoryRepository) ListPastDue(ctx context.Context, now time.Time, limit int) ([]invoices.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invoices.Invoice
	for _, inv := range r.invoices {
		switch inv.Status {
		case invoices.StatusSent, invoices.StatusViewed, invoices.StatusPartial:
		default:
			continue
		}
		if inv.DueDate != nil && inv.DueDate.Before(now) {
			out = append(out, clone(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListRecurring(ctx context.Context, today time.Time, after uuid.UUID, limit int) ([]invoices.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invoices.Invoice
	for _, inv := range r.invoices {
		if !inv.IsRecurring || inv.Status == invoices.StatusCancelled {
			continue
		}
		if inv.RecurringEndDate != nil && inv.RecurringEndDate.Before(today) {
			continue
		}
		if bytes.Compare(inv.ID[:], after[:]) <= 0 {
			continue
		}
		out = append(out, clone(inv))
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) StatusCounts(ctx context.Context, orgID uuid.UUID) (map[invoices.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[invoices.Status]int)
	for _, inv := range r.invoices {
		if inv.OrganizationID == orgID {
			counts[inv.Status]++
		}
	}
	return counts, nil
}

func (r *MemoryRepository) Totals(ctx context.Context, orgID uuid.UUID, now time.Time) (invoices.Totals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := invoices.Totals{Outstanding: decimal.Zero, Overdue: decimal.Zero, Collected: decimal.Zero}
	for _, inv := range r.invoices {
		if inv.OrganizationID != orgID {
			continue
		}
		t.Collected = t.Collected.Add(inv.AmountPaid)
		switch inv.Status {
		case invoices.StatusOverdue:
			t.Outstanding = t.Outstanding.Add(inv.AmountDue)
			t.Overdue = t.Overdue.Add(inv.AmountDue)
		case invoices.StatusSent, invoices.StatusViewed, invoices.StatusPartial:
			t.Outstanding = t.Outstanding.Add(inv.AmountDue)
			if inv.DueDate != nil && inv.DueDate.Before(now) {
				t.Overdue = t.Overdue.Add(inv.AmountDue)
			}
		}
	}
	return t, nil
}

func (r *MemoryRepository) insert(inv invoices.Invoice) error {
	for _, existing := range r.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return numbering.ErrDuplicateInvoiceNumber
		}
	}
	r.invoices[inv.ID] = clone(inv)
	return nil
}

func (r *MemoryRepository) get(orgID, id uuid.UUID) (invoices.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.OrganizationID != orgID {
		return invoices.Invoice{}, invoices.ErrInvoiceNotFound
	}
	return clone(inv), nil
}

func (r *MemoryRepository) update(inv invoices.Invoice) error {
	if r.Conflicts > 0 {
		r.Conflicts--
		return invoices.ErrVersionConflict
	}
	stored, ok := r.invoices[inv.ID]
	if !ok || stored.OrganizationID != inv.OrganizationID || stored.Version != inv.Version {
		return invoices.ErrVersionConflict
	}
	inv.Version++
	r.invoices[inv.ID] = clone(inv)
	return nil
}

type memoryTx struct {
	r *MemoryRepository
}

func (t memoryTx) Insert(ctx context.Context, inv invoices.Invoice) error {
	return t.r.Insert(ctx, inv)
}

func (t memoryTx) Get(ctx context.Context, orgID, id uuid.UUID) (invoices.Invoice, error) {
	return t.r.Get(ctx, orgID, id)
}

func (t memoryTx) Update(ctx context.Context, inv invoices.Invoice) error {
	return t.r.Update(ctx, inv)
}

func clone(inv invoices.Invoice) invoices.Invoice {
	if inv.LineItems != nil {
		inv.LineItems = append([]invoices.LineItem(nil), inv.LineItems...)
	}
	if inv.PaymentMethods != nil {
		inv.PaymentMethods = append([]string(nil), inv.PaymentMethods...)
	}
	return inv
}

// Directory serves organizations and customers and implements
// numbering.Store on top of them and a MemoryRepository.
type Directory struct {
	mu        sync.Mutex
	repo      *MemoryRepository
	orgs      map[uuid.UUID]organizations.Organization
	customers map[uuid.UUID]customers.Customer
}

// NewDirectory returns an empty directory backed by repo.
func NewDirectory(repo *MemoryRepository) *Directory {
	return &Directory{
		repo:      repo,
		orgs:      make(map[uuid.UUID]organizations.Organization),
		customers: make(map[uuid.UUID]customers.Customer),
	}
}

// AddOrganization registers an organization with sensible defaults.
func (d *Directory) AddOrganization(org organizations.Organization) organizations.Organization {
	d.mu.Lock()
	defer d.mu.Unlock()
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if org.InvoicePrefix == "" {
		org.InvoicePrefix = organizations.DefaultInvoicePrefix
	}
	if org.InvoiceNumberSequence == 0 {
		org.InvoiceNumberSequence = 1
	}
	if org.Currency == "" {
		org.Currency = "USD"
	}
	d.orgs[org.ID] = org
	return org
}

// AddCustomer registers an active customer.
func (d *Directory) AddCustomer(c customers.Customer) customers.Customer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.IsActive = c.DeletedAt == nil
	d.customers[c.ID] = c
	return c
}

// Organization returns the stored organization.
func (d *Directory) Organization(id uuid.UUID) organizations.Organization {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orgs[id]
}

func (d *Directory) Get(ctx context.Context, id uuid.UUID) (organizations.Organization, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	org, ok := d.orgs[id]
	if !ok {
		return organizations.Organization{}, organizations.ErrOrganizationNotFound
	}
	return org, nil
}

// Customers returns the customer reader view of the directory.
func (d *Directory) Customers() CustomerView {
	return CustomerView{d: d}
}

// CustomerView implements invoices.CustomerReader.
type CustomerView struct {
	d *Directory
}

func (v CustomerView) Get(ctx context.Context, orgID, id uuid.UUID) (customers.Customer, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	c, ok := v.d.customers[id]
	if !ok || c.OrganizationID != orgID {
		return customers.Customer{}, customers.ErrCustomerNotFound
	}
	return c, nil
}

func (v CustomerView) GetActive(ctx context.Context, orgID, id uuid.UUID) (customers.Customer, error) {
	c, err := v.Get(ctx, orgID, id)
	if err != nil {
		return customers.Customer{}, err
	}
	if !c.IsActive {
		return customers.Customer{}, customers.ErrCustomerInactive
	}
	return c, nil
}

func (d *Directory) NextOrganizationNumber(ctx context.Context, orgID uuid.UUID) (string, int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	org, ok := d.orgs[orgID]
	if !ok {
		return "", 0, organizations.ErrOrganizationNotFound
	}
	seq := org.InvoiceNumberSequence
	org.InvoiceNumberSequence++
	d.orgs[orgID] = org
	return org.InvoicePrefix, seq, nil
}

func (d *Directory) NextCustomerNumber(ctx context.Context, orgID, customerID uuid.UUID) (string, int64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.customers[customerID]
	if !ok || c.OrganizationID != orgID {
		return "", 0, false, customers.ErrCustomerNotFound
	}
	if !c.InvoiceSettings.Enabled() {
		return "", 0, false, nil
	}
	settings := *c.InvoiceSettings
	next := settings.NextNumber
	settings.NextNumber++
	c.InvoiceSettings = &settings
	d.customers[customerID] = c
	return settings.Prefix, next, true, nil
}

func (d *Directory) SkipOrganizationSequence(ctx context.Context, orgID uuid.UUID, next int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	org, ok := d.orgs[orgID]
	if !ok {
		return organizations.ErrOrganizationNotFound
	}
	if next > org.InvoiceNumberSequence {
		org.InvoiceNumberSequence = next
		d.orgs[orgID] = org
	}
	return nil
}

func (d *Directory) SkipCustomerSequence(ctx context.Context, orgID, customerID uuid.UUID, next int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.customers[customerID]
	if !ok || c.OrganizationID != orgID || c.InvoiceSettings == nil {
		return customers.ErrCustomerNotFound
	}
	if next > c.InvoiceSettings.NextNumber {
		settings := *c.InvoiceSettings
		settings.NextNumber = next
		c.InvoiceSettings = &settings
		d.customers[customerID] = c
	}
	return nil
}

func (d *Directory) NumberExists(ctx context.Context, orgID uuid.UUID, number string) (bool, error) {
	for _, inv := range d.repo.All() {
		if inv.OrganizationID == orgID && inv.InvoiceNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (d *Directory) MaxSuffix(ctx context.Context, prefix string) (int64, error) {
	var max int64
	for _, inv := range d.repo.All() {
		if !strings.HasPrefix(inv.InvoiceNumber, prefix+"-") {
			continue
		}
		series := numbering.SplitNumber(inv.InvoiceNumber)
		if series.Prefix == prefix && series.Suffix > max {
			max = series.Suffix
		}
	}
	return max, nil
}
