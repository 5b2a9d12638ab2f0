package export

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/httpx"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Handler serves authenticated PDF downloads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the download under an invoice router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/pdf", h.download)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Invoice(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	writePDF(w, doc, "attachment")
}

// PublicHandler serves PDF downloads for share links.
type PublicHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPublicHandler builds PublicHandler instance.
func NewPublicHandler(logger *slog.Logger, service *Service) *PublicHandler {
	return &PublicHandler{logger: logger, service: service}
}

// MountRoutes registers public routes.
func (h *PublicHandler) MountRoutes(r chi.Router) {
	r.Get("/{publicId}/pdf", h.download)
}

func (h *PublicHandler) download(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Public(r.Context(), chi.URLParam(r, "publicId"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	writePDF(w, doc, "inline")
}

func writePDF(w http.ResponseWriter, doc Document, disposition string) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", disposition+"; filename="+doc.Filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}
