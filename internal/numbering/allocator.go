package numbering

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// ErrDuplicateInvoiceNumber is returned when a number is already taken.
var ErrDuplicateInvoiceNumber = fmt.Errorf("duplicate invoice number: %w", shared.ErrConflict)

// ErrExhausted is returned when retries could not find a free number.
var ErrExhausted = fmt.Errorf("no free invoice number after retries: %w", shared.ErrConflict)

const defaultMaxAttempts = 10

// Store performs the atomic counter operations backing the allocator.
type Store interface {
	// NextOrganizationNumber increments the organization sequence and returns the
	// prefix and the value held before the increment.
	NextOrganizationNumber(ctx context.Context, orgID uuid.UUID) (string, int64, error)
	// NextCustomerNumber does the same for a customer override. ok is false when
	// the customer has no override configured.
	NextCustomerNumber(ctx context.Context, orgID, customerID uuid.UUID) (prefix string, next int64, ok bool, err error)
	// NumberExists reports whether the organization already holds number.
	NumberExists(ctx context.Context, orgID uuid.UUID, number string) (bool, error)
	// MaxSuffix returns the highest numeric suffix of invoices numbered "<prefix>-<digits>".
	MaxSuffix(ctx context.Context, prefix string) (int64, error)
	// SkipOrganizationSequence raises the organization sequence to at least next.
	// It never lowers it.
	SkipOrganizationSequence(ctx context.Context, orgID uuid.UUID, next int64) error
	// SkipCustomerSequence raises a customer override counter to at least next.
	SkipCustomerSequence(ctx context.Context, orgID, customerID uuid.UUID, next int64) error
}

// Request describes one allocation.
type Request struct {
	OrganizationID uuid.UUID
	CustomerID     *uuid.UUID
	Explicit       string
}

// CreateFunc persists an invoice under the given number. It must return
// ErrDuplicateInvoiceNumber when the store's unique index rejects the number.
type CreateFunc func(ctx context.Context, number string) error

// Allocator hands out collision-free invoice numbers.
type Allocator struct {
	store       Store
	maxAttempts int
}

// NewAllocator constructs an Allocator.
func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store, maxAttempts: defaultMaxAttempts}
}

// Allocate returns the next number for the request. Explicit numbers are reserved instead.
func (a *Allocator) Allocate(ctx context.Context, req Request) (string, error) {
	if explicit := strings.TrimSpace(req.Explicit); explicit != "" {
		if err := a.Reserve(ctx, req.OrganizationID, explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	g, err := a.next(ctx, req)
	if err != nil {
		return "", err
	}
	return g.number, nil
}

// generated remembers which counter produced a number.
type generated struct {
	number     string
	prefix     string
	customerID *uuid.UUID
}

func (a *Allocator) next(ctx context.Context, req Request) (generated, error) {
	if req.CustomerID != nil {
		prefix, next, ok, err := a.store.NextCustomerNumber(ctx, req.OrganizationID, *req.CustomerID)
		if err != nil {
			return generated{}, err
		}
		if ok {
			return generated{number: FormatCustomerNumber(prefix, next), prefix: prefix, customerID: req.CustomerID}, nil
		}
	}
	prefix, seq, err := a.store.NextOrganizationNumber(ctx, req.OrganizationID)
	if err != nil {
		return generated{}, err
	}
	return generated{number: FormatOrganizationNumber(prefix, seq), prefix: prefix}, nil
}

// skipTaken moves the counter that produced g past every number already
// issued under its prefix. Prefixes are not unique across organizations or
// customers, so another owner may have consumed the range.
func (a *Allocator) skipTaken(ctx context.Context, orgID uuid.UUID, g generated) error {
	max, err := a.store.MaxSuffix(ctx, g.prefix)
	if err != nil {
		return err
	}
	if g.customerID != nil {
		return a.store.SkipCustomerSequence(ctx, orgID, *g.customerID, max+1)
	}
	return a.store.SkipOrganizationSequence(ctx, orgID, max+1)
}

// Reserve fails with ErrDuplicateInvoiceNumber when the organization already uses number.
func (a *Allocator) Reserve(ctx context.Context, orgID uuid.UUID, number string) error {
	if number == "" {
		return shared.NewValidationError("invoiceNumber", "must not be empty")
	}
	exists, err := a.store.NumberExists(ctx, orgID, number)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateInvoiceNumber
	}
	return nil
}

// AllocateAndCreate allocates a number and runs create with it. When a generated
// number collides on insert, the counter is moved past the taken range and a
// fresh number is allocated. Explicit numbers are never retried.
func (a *Allocator) AllocateAndCreate(ctx context.Context, req Request, create CreateFunc) (string, error) {
	if strings.TrimSpace(req.Explicit) != "" {
		number, err := a.Allocate(ctx, req)
		if err != nil {
			return "", err
		}
		if err := create(ctx, number); err != nil {
			return "", err
		}
		return number, nil
	}
	for attempt := 0; attempt < a.attempts(); attempt++ {
		g, err := a.next(ctx, req)
		if err != nil {
			return "", err
		}
		err = create(ctx, g.number)
		if errors.Is(err, ErrDuplicateInvoiceNumber) {
			if err := a.skipTaken(ctx, req.OrganizationID, g); err != nil {
				return "", err
			}
			continue
		}
		if err != nil {
			return "", err
		}
		return g.number, nil
	}
	return "", ErrExhausted
}

// NextInSeries returns the number following the highest existing suffix of the series parentNumber belongs to.
func (a *Allocator) NextInSeries(ctx context.Context, parentNumber string) (string, error) {
	series := SplitNumber(parentNumber)
	max, err := a.store.MaxSuffix(ctx, series.Prefix)
	if err != nil {
		return "", err
	}
	if series.Suffix > max {
		max = series.Suffix
	}
	return series.Format(max + 1), nil
}

// SeriesAndCreate is AllocateAndCreate for series numbering.
func (a *Allocator) SeriesAndCreate(ctx context.Context, parentNumber string, create CreateFunc) (string, error) {
	for attempt := 0; attempt < a.attempts(); attempt++ {
		number, err := a.NextInSeries(ctx, parentNumber)
		if err != nil {
			return "", err
		}
		err = create(ctx, number)
		if errors.Is(err, ErrDuplicateInvoiceNumber) {
			continue
		}
		if err != nil {
			return "", err
		}
		return number, nil
	}
	return "", ErrExhausted
}

func (a *Allocator) attempts() int {
	if a.maxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return a.maxAttempts
}
