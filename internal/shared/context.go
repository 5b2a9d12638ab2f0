package shared

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Account is the authenticated caller resolved from the identity provider.
type Account struct {
	UserID         uuid.UUID
	Subject        string
	Email          string
	OrganizationID uuid.UUID
}

// HasOrganization reports whether the account already owns an organization.
func (a Account) HasOrganization() bool {
	return a.OrganizationID != uuid.Nil
}

type accountContextKey struct{}

// ContextWithAccount stores the account in context.
func ContextWithAccount(ctx context.Context, acct Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, acct)
}

// AccountFromContext extracts the account from context.
func AccountFromContext(ctx context.Context) (Account, bool) {
	acct, ok := ctx.Value(accountContextKey{}).(Account)
	return acct, ok
}

// ErrNoOrganization is returned when the caller has not created an organization yet.
var ErrNoOrganization = fmt.Errorf("organization setup required: %w", ErrForbidden)

// OrganizationFromContext returns the caller's organization id.
func OrganizationFromContext(ctx context.Context) (uuid.UUID, error) {
	acct, ok := AccountFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrUnauthorized
	}
	if !acct.HasOrganization() {
		return uuid.Nil, ErrNoOrganization
	}
	return acct.OrganizationID, nil
}
