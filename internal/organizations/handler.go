package organizations

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/httpx"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Handler exposes organization endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers organization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/current", h.current)
	r.Patch("/current", h.updateSettings)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	acct, ok := shared.AccountFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	org, err := h.service.Create(r.Context(), acct, input)
	if err != nil {
		h.logger.Warn("create organization", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, org)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	acct, ok := shared.AccountFromContext(r.Context())
	if !ok || !acct.HasOrganization() {
		httpx.RespondError(w, ErrOrganizationNotFound)
		return
	}
	org, err := h.service.Get(r.Context(), acct.OrganizationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	acct, ok := shared.AccountFromContext(r.Context())
	if !ok || !acct.HasOrganization() {
		httpx.RespondError(w, ErrOrganizationNotFound)
		return
	}
	var input SettingsInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	org, err := h.service.UpdateSettings(r.Context(), acct.OrganizationID, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}
