package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices/invoicetest"
	"github.com/Koushith/Web3-Invoice-sub000/internal/numbering"
	"github.com/Koushith/Web3-Invoice-sub000/internal/observability"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
	testenv "github.com/Koushith/Web3-Invoice-sub000/testing"
)

type stubAuthenticator struct {
	acct shared.Account
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (shared.Account, error) {
	if token != "good" {
		return shared.Account{}, shared.ErrUnauthorized
	}
	return s.acct, nil
}

func (s stubAuthenticator) AuthenticateKey(ctx context.Context, token string) (shared.Account, error) {
	return shared.Account{}, shared.ErrUnauthorized
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := testenv.Logger()
	repo := invoicetest.NewMemoryRepository()
	dir := invoicetest.NewDirectory(repo)
	svc := invoices.NewService(repo, numbering.NewAllocator(dir), dir, dir.Customers(), logger)
	cfg := &Config{AppEnv: "development", AppRateLimit: 1000}
	return NewRouter(RouterParams{
		Logger:               logger,
		Config:               cfg,
		Authenticator:        stubAuthenticator{acct: shared.Account{UserID: uuid.New(), OrganizationID: uuid.New()}},
		InvoiceHandler:       invoices.NewHandler(logger, svc),
		PublicInvoiceHandler: invoices.NewPublicHandler(logger, svc),
		Metrics:              observability.NewMetrics(),
	})
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "invoicing_http_requests_total")
}

func TestRouterRequiresAuthentication(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"invoices"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/invoices/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInTestMode(t *testing.T) {
	require.True(t, InTestMode())
	require.Equal(t, "test", os.Getenv("APP_ENV"))
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{ActivityBackend: "postgres", PDFRenderer: "local"}
	require.NoError(t, cfg.validate())

	cfg.ActivityBackend = "cassandra"
	require.Error(t, cfg.validate())

	cfg = Config{ActivityBackend: "mongo", PDFRenderer: "gotenberg", AppEnv: "production"}
	require.Error(t, cfg.validate())
	cfg.IdentityTokenInfoURL = "https://id.example.com/tokeninfo"
	require.NoError(t, cfg.validate())
	require.True(t, cfg.IsProduction())
}
