package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/httpx"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Handler wires HTTP endpoints for the caller and its API keys.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Get("/api-keys", h.listKeys)
	r.Post("/api-keys", h.issueKey)
	r.Delete("/api-keys/{keyId}", h.revokeKey)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	acct, ok := shared.AccountFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	user, err := h.service.Me(r.Context(), acct)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	keys, err := h.service.ListKeys(r.Context(), orgID)
	if err != nil {
		h.logger.Error("list api keys", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if keys == nil {
		keys = []APIKey{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"apiKeys": keys})
}

func (h *Handler) issueKey(w http.ResponseWriter, r *http.Request) {
	acct, ok := shared.AccountFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var input CreateKeyInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	issued, err := h.service.IssueKey(r.Context(), acct, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("api key issued",
		slog.String("key_id", issued.ID),
		slog.String("organization_id", issued.OrganizationID.String()))
	httpx.JSON(w, http.StatusCreated, issued)
}

func (h *Handler) revokeKey(w http.ResponseWriter, r *http.Request) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RevokeKey(r.Context(), orgID, chi.URLParam(r, "keyId")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
