package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/httpx"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

const idempotencyModule = "payments.record"

// IdempotencyStore remembers processed Idempotency-Key headers.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler exposes payment endpoints.
type Handler struct {
	logger   *slog.Logger
	recorder *Recorder
	keys     IdempotencyStore
}

// NewHandler builds Handler instance. keys may be nil.
func NewHandler(logger *slog.Logger, recorder *Recorder, keys IdempotencyStore) *Handler {
	return &Handler{logger: logger, recorder: recorder, keys: keys}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.record)
	r.Get("/{id}", h.get)
	r.Post("/{id}/refund", h.refund)
}

type listResponse struct {
	Payments   []Payment         `json:"payments"`
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
	req := ListRequest{OrganizationID: orgID, Status: Status(q.Get("status")), Limit: limit, Offset: offset}
	if raw := q.Get("invoiceId"); raw != "" {
		invoiceID, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("invoiceId", "must be a UUID"))
			return
		}
		req.InvoiceID = &invoiceID
	}
	items, total, err := h.recorder.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Payments: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	orgID, err := shared.OrganizationFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input RecordInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.keys != nil {
		key = orgID.String() + ":" + key
		if err := h.keys.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if !errors.Is(err, shared.ErrIdempotencyConflict) {
				h.logger.Error("idempotency check", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
	}

	result, err := h.recorder.Record(r.Context(), orgID, input)
	if err != nil {
		if key != "" && h.keys != nil {
			if derr := h.keys.Delete(r.Context(), key, idempotencyModule); derr != nil {
				h.logger.Warn("idempotency rollback", slog.Any("error", derr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := scope(w, r)
	if !ok {
		return
	}
	p, err := h.recorder.Get(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := scope(w, r)
	if !ok {
		return
	}
	var input RefundInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	result, err := h.recorder.Refund(r.Context(), orgID, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
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
