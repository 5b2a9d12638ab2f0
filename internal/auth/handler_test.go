package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Koushith/Web3-Invoice-sub000/internal/auth"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

type memoryRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]auth.User
	keys  map[string]auth.APIKey
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[uuid.UUID]auth.User{}, keys: map[string]auth.APIKey{}}
}

func (m *memoryRepo) UpsertUser(ctx context.Context, identity auth.Identity, now time.Time) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Subject == identity.Subject {
			u.Email = identity.Email
			m.users[id] = u
			return u, nil
		}
	}
	u := auth.User{ID: uuid.New(), Subject: identity.Subject, Email: identity.Email, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryRepo) GetUser(ctx context.Context, id uuid.UUID) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryRepo) InsertAPIKey(ctx context.Context, key auth.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = key
	return nil
}

func (m *memoryRepo) GetAPIKey(ctx context.Context, id string) (auth.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return auth.APIKey{}, auth.ErrAPIKeyNotFound
	}
	return key, nil
}

func (m *memoryRepo) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]auth.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.APIKey
	for _, key := range m.keys {
		if key.OrganizationID == orgID {
			out = append(out, key)
		}
	}
	return out, nil
}

func (m *memoryRepo) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.keys[id]
	key.LastUsedAt = &at
	m.keys[id] = key
	return nil
}

func (m *memoryRepo) RevokeAPIKey(ctx context.Context, orgID uuid.UUID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok || key.OrganizationID != orgID {
		return auth.ErrAPIKeyNotFound
	}
	if key.RevokedAt == nil {
		key.RevokedAt = &at
	}
	m.keys[id] = key
	return nil
}

func (m *memoryRepo) setOrganization(userID, orgID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.OrganizationID = &orgID
	m.users[userID] = u
}

func tokenInfoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_ = json.NewEncoder(w).Encode(auth.Identity{Subject: "sub-1", Email: "Bruce@Wayne.com"})
		case "Bearer flaky":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T) (*auth.Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	srv := tokenInfoServer(t)
	svc := auth.NewService(repo, auth.NewTokenInfoVerifier(srv.URL, srv.Client()), nil)
	svc.SetHashCost(bcrypt.MinCost)
	return svc, repo
}

func TestAuthenticateBearer(t *testing.T) {
	svc, _ := newService(t)

	acct, err := svc.Authenticate(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, "sub-1", acct.Subject)
	require.Equal(t, "bruce@wayne.com", acct.Email)
	require.False(t, acct.HasOrganization())

	again, err := svc.Authenticate(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, acct.UserID, again.UserID)

	_, err = svc.Authenticate(context.Background(), "bad")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = svc.Authenticate(context.Background(), "flaky")
	require.ErrorIs(t, err, shared.ErrExternalService)
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	acct, err := svc.Authenticate(ctx, "good")
	require.NoError(t, err)

	_, err = svc.IssueKey(ctx, acct, auth.CreateKeyInput{Name: "ci"})
	require.ErrorIs(t, err, shared.ErrForbidden)

	orgID := uuid.New()
	repo.setOrganization(acct.UserID, orgID)
	acct.OrganizationID = orgID

	_, err = svc.IssueKey(ctx, acct, auth.CreateKeyInput{Name: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)

	issued, err := svc.IssueKey(ctx, acct, auth.CreateKeyInput{Name: "ci"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(issued.Token, issued.ID+"."))
	require.True(t, strings.HasPrefix(issued.ID, "key_"))

	keyAcct, err := svc.AuthenticateKey(ctx, issued.Token)
	require.NoError(t, err)
	require.Equal(t, orgID, keyAcct.OrganizationID)
	require.Equal(t, acct.UserID, keyAcct.UserID)

	stored, err := repo.GetAPIKey(ctx, issued.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)

	_, err = svc.AuthenticateKey(ctx, issued.ID+".wrong")
	require.ErrorIs(t, err, auth.ErrInvalidAPIKey)
	_, err = svc.AuthenticateKey(ctx, "nodot")
	require.ErrorIs(t, err, auth.ErrInvalidAPIKey)
	_, err = svc.AuthenticateKey(ctx, "user_01h455vb4pex5vsknk084sn02q.secret")
	require.ErrorIs(t, err, auth.ErrInvalidAPIKey)

	require.NoError(t, svc.RevokeKey(ctx, orgID, issued.ID))
	require.NoError(t, svc.RevokeKey(ctx, orgID, issued.ID))
	_, err = svc.AuthenticateKey(ctx, issued.Token)
	require.ErrorIs(t, err, auth.ErrInvalidAPIKey)

	require.ErrorIs(t, svc.RevokeKey(ctx, uuid.New(), issued.ID), shared.ErrNotFound)
}

func TestMiddlewareAndRoutes(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	acct, err := svc.Authenticate(ctx, "good")
	require.NoError(t, err)
	orgID := uuid.New()
	repo.setOrganization(acct.UserID, orgID)

	router := chi.NewRouter()
	router.Use(auth.Middleware(svc, nil))
	auth.NewHandler(nil, svc).MountRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api-keys", strings.NewReader(`{"name":"deploy"}`))
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var issued auth.IssuedKey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.Token)

	for _, setHeader := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set(auth.APIKeyHeader, issued.Token) },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+issued.Token) },
	} {
		req = httptest.NewRequest(http.MethodGet, "/api-keys", nil)
		setHeader(req)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), issued.ID)
		require.NotContains(t, rec.Body.String(), "secret")
	}

	req = httptest.NewRequest(http.MethodDelete, "/api-keys/"+issued.ID, nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(auth.APIKeyHeader, issued.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
