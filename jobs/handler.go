package jobs

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/httpx"
)

// QueueInspector is the read side of asynq.Inspector used by Handler.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// Handler exposes read-only queue state.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs a Handler. A nil inspector reports an empty queue.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/scheduled", h.scheduled)
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue state unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, queueHealth{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Paused:    info.Paused,
	})
}

type scheduledTask struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	NextProcessAt time.Time `json:"nextProcessAt"`
}

func (h *Handler) scheduled(w http.ResponseWriter, r *http.Request) {
	out := []scheduledTask{}
	if h.inspector != nil {
		infos, err := h.inspector.ListScheduledTasks(QueueDefault, asynq.PageSize(20), asynq.Page(1))
		if err != nil {
			h.logger.Warn("list scheduled tasks", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue state unavailable")
			return
		}
		for _, info := range infos {
			out = append(out, scheduledTask{ID: info.ID, Type: info.Type, NextProcessAt: info.NextProcessAt})
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": out})
}
