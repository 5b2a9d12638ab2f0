package payments_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/payments"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// memoryKeys mirrors shared.IdempotencyStore: the first insert of a key wins.
type memoryKeys struct {
	mu      sync.Mutex
	keys    map[string]bool
	deleted []string
}

func newMemoryKeys() *memoryKeys {
	return &memoryKeys{keys: make(map[string]bool)}
}

func (m *memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[module+"|"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"|"+key] = true
	return nil
}

func (m *memoryKeys) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"|"+key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryKeys) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func newPaymentsRouter(f *fixture, keys payments.IdempotencyStore) http.Handler {
	handler := payments.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.recorder, keys)
	r := chi.NewRouter()
	r.Route("/payments", handler.MountRoutes)
	return r
}

func postPayment(t *testing.T, router http.Handler, orgID uuid.UUID, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	req = req.WithContext(shared.ContextWithAccount(req.Context(), shared.Account{UserID: uuid.New(), OrganizationID: orgID}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func paymentBody(inv invoices.Invoice, amount string) string {
	return `{"invoiceId":"` + inv.ID.String() + `","amount":"` + amount + `","method":"bank_transfer"}`
}

func TestRecordHandlerCreatesPaymentWithWarnings(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t)
	f.recorder.SetNotes(failingNotes{})
	router := newPaymentsRouter(f, newMemoryKeys())

	rr := postPayment(t, router, f.org.ID, "pay-1", paymentBody(inv, "100.00"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body struct {
		Payment  payments.Payment `json:"payment"`
		Warnings []shared.Warning `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, payments.StatusCompleted, body.Payment.Status)
	assert.Equal(t, "100.00", body.Payment.Amount.StringFixed(2))
	require.Len(t, body.Warnings, 1)
	assert.Equal(t, "note", body.Warnings[0].Kind)
}

func TestRecordHandlerRejectsReplayedKey(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t)
	keys := newMemoryKeys()
	router := newPaymentsRouter(f, keys)

	first := postPayment(t, router, f.org.ID, "pay-1", paymentBody(inv, "50.00"))
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	replay := postPayment(t, router, f.org.ID, "pay-1", paymentBody(inv, "50.00"))
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Equal(t, 1, f.store.count())

	// Keys are scoped to the caller's organization.
	other := postPayment(t, router, uuid.New(), "pay-1", paymentBody(inv, "50.00"))
	require.Equal(t, http.StatusNotFound, other.Code)
	require.Equal(t, 1, f.store.count())
}

func TestRecordHandlerReleasesKeyOnFailure(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t)
	keys := newMemoryKeys()
	router := newPaymentsRouter(f, keys)

	rr := postPayment(t, router, f.org.ID, "pay-1", paymentBody(inv, "500.00"))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, []string{f.org.ID.String() + ":pay-1"}, keys.deleted)
	require.Zero(t, keys.held())

	rr = postPayment(t, router, f.org.ID, "pay-1", paymentBody(inv, "220.00"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, 1, f.store.count())
}

func TestRecordHandlerRequiresOrganization(t *testing.T) {
	f := newFixture(t)
	router := newPaymentsRouter(f, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
