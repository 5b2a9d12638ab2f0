package numbering

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/organizations"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

type memoryCustomerSeq struct {
	prefix string
	next   int64
}

type memoryStore struct {
	mu        sync.Mutex
	orgs      map[uuid.UUID]*organizations.Organization
	customers map[uuid.UUID]*memoryCustomerSeq
	numbers   map[string]uuid.UUID
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orgs:      make(map[uuid.UUID]*organizations.Organization),
		customers: make(map[uuid.UUID]*memoryCustomerSeq),
		numbers:   make(map[string]uuid.UUID),
	}
}

func (s *memoryStore) addOrg(prefix string, seq int64) uuid.UUID {
	id := uuid.New()
	s.orgs[id] = &organizations.Organization{ID: id, InvoicePrefix: prefix, InvoiceNumberSequence: seq}
	return id
}

func (s *memoryStore) NextOrganizationNumber(ctx context.Context, orgID uuid.UUID) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return "", 0, organizations.ErrOrganizationNotFound
	}
	seq := org.InvoiceNumberSequence
	org.InvoiceNumberSequence++
	return org.InvoicePrefix, seq, nil
}

func (s *memoryStore) NextCustomerNumber(ctx context.Context, orgID, customerID uuid.UUID) (string, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return "", 0, false, customers.ErrCustomerNotFound
	}
	if c.prefix == "" || c.next <= 0 {
		return "", 0, false, nil
	}
	next := c.next
	c.next++
	return c.prefix, next, true, nil
}

func (s *memoryStore) SkipOrganizationSequence(ctx context.Context, orgID uuid.UUID, next int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return organizations.ErrOrganizationNotFound
	}
	org.InvoiceNumberSequence = max(org.InvoiceNumberSequence, next)
	return nil
}

func (s *memoryStore) SkipCustomerSequence(ctx context.Context, orgID, customerID uuid.UUID, next int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return customers.ErrCustomerNotFound
	}
	c.next = max(c.next, next)
	return nil
}

func (s *memoryStore) NumberExists(ctx context.Context, orgID uuid.UUID, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.numbers[number]
	return ok && owner == orgID, nil
}

func (s *memoryStore) MaxSuffix(ctx context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for number := range s.numbers {
		series := SplitNumber(number)
		if series.Prefix == prefix && strings.HasPrefix(number, prefix+"-") && series.Suffix > max {
			max = series.Suffix
		}
	}
	return max, nil
}

func (s *memoryStore) insert(orgID uuid.UUID) CreateFunc {
	return func(ctx context.Context, number string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, taken := s.numbers[number]; taken {
			return ErrDuplicateInvoiceNumber
		}
		s.numbers[number] = orgID
		return nil
	}
}

func TestAllocateOrganizationSequence(t *testing.T) {
	store := newMemoryStore()
	orgID := store.addOrg("INV", 1)
	alloc := NewAllocator(store)

	first, err := alloc.Allocate(context.Background(), Request{OrganizationID: orgID})
	require.NoError(t, err)
	require.Equal(t, "INV-0001", first)

	second, err := alloc.Allocate(context.Background(), Request{OrganizationID: orgID})
	require.NoError(t, err)
	require.Equal(t, "INV-0002", second)
	require.EqualValues(t, 3, store.orgs[orgID].InvoiceNumberSequence)
}

func TestAllocateCustomerOverride(t *testing.T) {
	store := newMemoryStore()
	orgID := store.addOrg("INV", 5)
	customerID := uuid.New()
	store.customers[customerID] = &memoryCustomerSeq{prefix: "ACME", next: 1}
	plain := uuid.New()
	store.customers[plain] = &memoryCustomerSeq{}
	alloc := NewAllocator(store)

	number, err := alloc.Allocate(context.Background(), Request{OrganizationID: orgID, CustomerID: &customerID})
	require.NoError(t, err)
	require.Equal(t, "ACME-001", number)
	require.EqualValues(t, 2, store.customers[customerID].next)
	require.EqualValues(t, 5, store.orgs[orgID].InvoiceNumberSequence)

	number, err = alloc.Allocate(context.Background(), Request{OrganizationID: orgID, CustomerID: &plain})
	require.NoError(t, err)
	require.Equal(t, "INV-0005", number)

	missing := uuid.New()
	_, err = alloc.Allocate(context.Background(), Request{OrganizationID: orgID, CustomerID: &missing})
	require.ErrorIs(t, err, customers.ErrCustomerNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReserveExplicitNumber(t *testing.T) {
	store := newMemoryStore()
	orgID := store.addOrg("INV", 1)
	store.numbers["ACME-001"] = orgID
	alloc := NewAllocator(store)

	_, err := alloc.Allocate(context.Background(), Request{OrganizationID: orgID, Explicit: "ACME-001"})
	require.ErrorIs(t, err, ErrDuplicateInvoiceNumber)

	_, err = alloc.Allocate(context.Background(), Request{OrganizationID: orgID, Explicit: "acme-001"})
	require.NoError(t, err, "reservation is case-sensitive")
	require.EqualValues(t, 1, store.orgs[orgID].InvoiceNumberSequence)
}

func TestAllocateAndCreateSkipsTakenNumbers(t *testing.T) {
	store := newMemoryStore()
	orgID := store.addOrg("INV", 1)
	store.numbers["INV-0001"] = orgID
	store.numbers["INV-0002"] = uuid.New()
	alloc := NewAllocator(store)

	number, err := alloc.AllocateAndCreate(context.Background(), Request{OrganizationID: orgID}, store.insert(orgID))
	require.NoError(t, err)
	require.Equal(t, "INV-0003", number)
}

func TestOrganizationsSharingPrefixSkipTakenRange(t *testing.T) {
	store := newMemoryStore()
	first := store.addOrg("INV", 1)
	second := store.addOrg("INV", 1)
	alloc := NewAllocator(store)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := alloc.AllocateAndCreate(ctx, Request{OrganizationID: first}, store.insert(first))
		require.NoError(t, err)
	}

	number, err := alloc.AllocateAndCreate(ctx, Request{OrganizationID: second}, store.insert(second))
	require.NoError(t, err)
	require.Equal(t, "INV-0013", number)
	require.EqualValues(t, 14, store.orgs[second].InvoiceNumberSequence)

	number, err = alloc.AllocateAndCreate(ctx, Request{OrganizationID: first}, store.insert(first))
	require.NoError(t, err)
	require.Equal(t, "INV-0014", number)
}

func TestCustomersSharingOverridePrefixSkipTakenRange(t *testing.T) {
	store := newMemoryStore()
	orgID := store.addOrg("INV", 1)
	acme, rival := uuid.New(), uuid.New()
	store.customers[acme] = &memoryCustomerSeq{prefix: "ACME", next: 1}
	store.customers[rival] = &memoryCustomerSeq{prefix: "ACME", next: 1}
	alloc := NewAllocator(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := alloc.AllocateAndCreate(ctx, Request{OrganizationID: orgID, CustomerID: &acme}, store.insert(orgID))
		require.NoError(t, err)
	}
	number, err := alloc.AllocateAndCreate(ctx, Request{OrganizationID: orgID, CustomerID: &rival}, store.insert(orgID))
	require.NoError(t, err)
	require.Equal(t, "ACME-004", number)
	require.EqualValues(t, 5, store.customers[rival].next)
	require.EqualValues(t, 1, store.orgs[orgID].InvoiceNumberSequence)
}

func TestExhaustedIsConflict(t *testing.T) {
	store := newMemoryStore()
	orgID := store.addOrg("INV", 1)
	alloc := NewAllocator(store)
	alloc.maxAttempts = 3

	alwaysTaken := func(ctx context.Context, number string) error { return ErrDuplicateInvoiceNumber }
	_, err := alloc.AllocateAndCreate(context.Background(), Request{OrganizationID: orgID}, alwaysTaken)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestConcurrentAllocationsAreDistinct(t *testing.T) {
	store := newMemoryStore()
	orgID := store.addOrg("INV", 1)
	alloc := NewAllocator(store)

	const n = 50
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := alloc.AllocateAndCreate(context.Background(), Request{OrganizationID: orgID}, store.insert(orgID))
			if err == nil {
				results <- number
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]struct{})
	for number := range results {
		seen[number] = struct{}{}
	}
	require.Len(t, seen, n)
	require.EqualValues(t, 1+n, store.orgs[orgID].InvoiceNumberSequence)
}

func TestSeriesNumbering(t *testing.T) {
	store := newMemoryStore()
	orgID := store.addOrg("INV", 1)
	store.numbers["ACME-001"] = orgID
	store.numbers["ACME-007"] = orgID
	store.numbers["ACME-X"] = orgID
	alloc := NewAllocator(store)

	number, err := alloc.SeriesAndCreate(context.Background(), "ACME-001", store.insert(orgID))
	require.NoError(t, err)
	require.Equal(t, "ACME-008", number)

	number, err = alloc.NextInSeries(context.Background(), "Q1")
	require.NoError(t, err)
	require.Equal(t, "Q1-001", number)
}

func TestSplitNumber(t *testing.T) {
	require.Equal(t, Series{Prefix: "INV-2024", Suffix: 7, Width: 4}, SplitNumber("INV-2024-0007"))
	require.Equal(t, Series{Prefix: "ACME", Width: 3}, SplitNumber("ACME"))
	require.Equal(t, Series{Prefix: "ACME-", Width: 3}, SplitNumber("ACME-"))
	require.Equal(t, "INV-0100", SplitNumber("INV-0099").Format(100))
}
