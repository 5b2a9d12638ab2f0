package invoices

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/httpx"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Handler exposes authenticated invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/summary", h.summary)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.cancel)
	r.Post("/{id}/send", h.send)
	r.Post("/{id}/mark-paid", h.markPaid)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/payment-request", h.paymentRequest)
}

type listResponse struct {
	Invoices   []Invoice         `json:"invoices"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	page, perPage, limit, offset := shared.PageFromQuery(q)
	req := ListRequest{
		OrganizationID: orgID,
		Status:         Status(q.Get("status")),
		Search:         q.Get("search"),
		Limit:          limit,
		Offset:         offset,
	}
	if raw := q.Get("customerId"); raw != "" {
		customerID, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("customerId", "must be a UUID"))
			return
		}
		req.CustomerID = &customerID
	}
	if raw := q.Get("recurring"); raw != "" {
		recurring, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("recurring", "must be a boolean"))
			return
		}
		req.Recurring = &recurring
	}
	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Invoices: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Create(r.Context(), orgID, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), orgID)
	if err != nil {
		h.logger.Error("invoice summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := scope(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := scope(w, r)
	if !ok {
		return
	}
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Update(r.Context(), orgID, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := scope(w, r)
	if !ok {
		return
	}
	result, err := h.service.Send(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := scope(w, r)
	if !ok {
		return
	}
	inv, err := h.service.MarkPaid(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := scope(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Cancel(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type paymentRequestInput struct {
	PayeeWallet string `json:"payeeWallet"`
}

func (h *Handler) paymentRequest(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := scope(w, r)
	if !ok {
		return
	}
	var input paymentRequestInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.AttachPaymentRequest(r.Context(), orgID, id, input.PayeeWallet)
	if err != nil {
		h.logger.Warn("payment request", slog.String("invoice_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// PublicHandler serves unauthenticated invoice links.
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
	r.Get("/{publicId}", h.view)
}

func (h *PublicHandler) view(w http.ResponseWriter, r *http.Request) {
	projection, err := h.service.ViewPublic(r.Context(), chi.URLParam(r, "publicId"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, projection)
}

func scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, id, true
}
