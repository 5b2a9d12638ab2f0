package activity

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/httpx"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Handler serves invoice activity feeds.
type Handler struct {
	logger *slog.Logger
	store  Store
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// MountRoutes registers the feed under an invoice route group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/activity", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoiceID, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.store.ListForInvoice(r.Context(), orgID, invoiceID, limit)
	if err != nil {
		h.logger.Error("list activity", slog.Any("error", err), slog.String("invoice_id", invoiceID.String()))
		httpx.RespondError(w, err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}
