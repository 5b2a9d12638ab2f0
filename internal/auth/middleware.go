package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/httpx"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// APIKeyHeader carries machine credentials.
const APIKeyHeader = "X-API-Key"

// Authenticator is the subset of Service the middleware needs.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (shared.Account, error)
	AuthenticateKey(ctx context.Context, token string) (shared.Account, error)
}

// Middleware resolves the caller from an API key or a bearer token and
// stores it in the request context. Requests without credentials are rejected.
func Middleware(authn Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				acct shared.Account
				err  error
			)
			key := r.Header.Get(APIKeyHeader)
			bearer := bearerToken(r)
			switch {
			case key != "":
				acct, err = authn.AuthenticateKey(r.Context(), key)
			case strings.HasPrefix(bearer, apiKeyPrefix+"_"):
				acct, err = authn.AuthenticateKey(r.Context(), bearer)
			case bearer != "":
				acct, err = authn.Authenticate(r.Context(), bearer)
			default:
				err = shared.ErrUnauthorized
			}
			if err != nil {
				if !clientError(err) {
					logger.Error("authenticate request", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithAccount(r.Context(), acct)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func clientError(err error) bool {
	status := httpx.StatusFor(err)
	return status >= 400 && status < 500
}
