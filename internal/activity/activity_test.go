package activity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

func TestPrepareFillsIdentity(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	e, err := prepare(Event{OrganizationID: uuid.New(), InvoiceID: uuid.New(), Kind: KindInvoiceSent}, now)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, e.ID)
	require.Equal(t, time.UTC, e.OccurredAt.Location())
	require.True(t, e.OccurredAt.Equal(now))

	_, err = prepare(Event{OrganizationID: uuid.New(), Kind: KindInvoiceSent}, now)
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestMongoModelRoundTrip(t *testing.T) {
	e, err := prepare(Event{
		OrganizationID: uuid.New(),
		InvoiceID:      uuid.New(),
		Kind:           KindPaymentRecorded,
		Message:        "Payment received",
		Meta:           map[string]any{"amount": "220.00"},
	}, time.Now())
	require.NoError(t, err)

	back, err := fromModel(toModel(e))
	require.NoError(t, err)
	require.Equal(t, e, back)

	m := toModel(e)
	m.InvoiceID = "not-a-uuid"
	_, err = fromModel(m)
	require.Error(t, err)
}

type memoryStore struct {
	events []Event
}

func (m *memoryStore) Record(ctx context.Context, e Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memoryStore) ListForInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, limit int) ([]Event, error) {
	var out []Event
	for _, e := range m.events {
		if e.OrganizationID == orgID && e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestHandlerScopesToOrganization(t *testing.T) {
	orgID := uuid.New()
	invoiceID := uuid.New()
	store := &memoryStore{}
	require.NoError(t, store.Record(context.Background(), Event{OrganizationID: orgID, InvoiceID: invoiceID, Kind: KindInvoiceCreated}))
	require.NoError(t, store.Record(context.Background(), Event{OrganizationID: uuid.New(), InvoiceID: invoiceID, Kind: KindInvoiceCreated}))

	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store).MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/"+invoiceID.String()+"/activity", nil)
	req = req.WithContext(shared.ContextWithAccount(req.Context(), shared.Account{UserID: uuid.New(), OrganizationID: orgID}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"kind":"invoice.created"`)
	require.Contains(t, rec.Body.String(), orgID.String())

	req = httptest.NewRequest(http.MethodGet, "/"+invoiceID.String()+"/activity", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
