package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	jobmetrics "github.com/Koushith/Web3-Invoice-sub000/internal/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

const (
	sweepBatchSize = 200
	sweepLockTTL   = 15 * time.Minute
)

// PastDueLister finds open invoices whose due date has passed.
type PastDueLister interface {
	ListPastDue(ctx context.Context, now time.Time, limit int) ([]invoices.Invoice, error)
}

// StatusRefresher re-derives and persists an invoice status. invoices.Service satisfies it.
type StatusRefresher interface {
	RefreshStatus(ctx context.Context, orgID, id uuid.UUID) (invoices.Invoice, bool, error)
}

// SweepSummary reports one sweep.
type SweepSummary struct {
	Scanned int
	Marked  int
	Failed  int
}

// OverdueSweepJob stores the overdue status so list filters and reports see it.
type OverdueSweepJob struct {
	Lister    PastDueLister
	Refresher StatusRefresher
	Redis     *redis.Client
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewOverdueSweepJob constructs the job handler.
func NewOverdueSweepJob(lister PastDueLister, refresher StatusRefresher, client *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Lister:    lister,
		Refresher: refresher,
		Redis:     client,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs the sweep as an asynq task.
func (j *OverdueSweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	tracker := j.metrics().Track(TaskOverdueSweep)
	defer func() {
		err = tracker.End(err)
	}()
	_, err = j.Sweep(ctx)
	if errors.Is(err, shared.ErrLockHeld) {
		j.logger().Info("overdue sweep skipped, another sweep holds the lock")
		return nil
	}
	return err
}

// Sweep refreshes every past-due open invoice once.
func (j *OverdueSweepJob) Sweep(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary
	if j == nil || j.Lister == nil || j.Refresher == nil {
		return summary, errors.New("overdue sweep: handler not configured")
	}
	logger := j.logger()
	if j.Redis != nil {
		lock, err := shared.AcquireRunLock(ctx, j.Redis, shared.InvoiceSweepLockKey(), sweepLockTTL)
		if err != nil {
			return summary, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release sweep lock", slog.Any("error", err))
			}
		}()
	}

	now := j.now()
	seen := make(map[uuid.UUID]struct{})
	for {
		batch, err := j.Lister.ListPastDue(ctx, now, sweepBatchSize)
		if err != nil {
			return summary, err
		}
		fresh := 0
		for _, inv := range batch {
			if _, ok := seen[inv.ID]; ok {
				continue
			}
			seen[inv.ID] = struct{}{}
			fresh++
			summary.Scanned++
			_, changed, err := j.Refresher.RefreshStatus(ctx, inv.OrganizationID, inv.ID)
			if err != nil {
				summary.Failed++
				logger.Warn("refresh invoice status",
					slog.String("invoice_id", inv.ID.String()),
					slog.Any("error", err))
				continue
			}
			if changed {
				summary.Marked++
			}
		}
		// Marked invoices drop out of the listing; a page of already seen
		// rows means only failures or unchanged invoices remain.
		if len(batch) < sweepBatchSize || fresh == 0 {
			break
		}
	}

	m := j.metrics()
	m.AddItems(TaskOverdueSweep, "marked", summary.Marked)
	m.AddItems(TaskOverdueSweep, "failed", summary.Failed)
	logger.Info("overdue sweep completed",
		slog.Int("scanned", summary.Scanned),
		slog.Int("marked", summary.Marked),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverdueSweep))
	}
	return slog.Default().With(slog.String("job", TaskOverdueSweep))
}

func (j *OverdueSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
