package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Koushith/Web3-Invoice-sub000/internal/chain"
	jobmetrics "github.com/Koushith/Web3-Invoice-sub000/internal/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// ChainSyncer is satisfied by chain.Syncer.
type ChainSyncer interface {
	Sync(ctx context.Context) (chain.SyncSummary, error)
}

// ChainSyncJob pulls payment-reference events and records them as payments.
type ChainSyncJob struct {
	Syncer  ChainSyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewChainSyncJob constructs the job handler.
func NewChainSyncJob(syncer ChainSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ChainSyncJob {
	return &ChainSyncJob{Syncer: syncer, Logger: logger, Metrics: metrics}
}

// Handle executes one sync pass.
func (j *ChainSyncJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Syncer == nil {
		return errors.New("chain sync: handler not configured")
	}
	logger := j.logger()
	tracker := j.metrics().Track(TaskChainSync)
	defer func() {
		err = tracker.End(err)
	}()

	summary, err := j.Syncer.Sync(ctx)
	if errors.Is(err, shared.ErrLockHeld) {
		logger.Info("chain sync skipped, another sync holds the lock")
		return nil
	}
	if err != nil {
		logger.Error("chain sync failed", slog.Any("error", err))
		return err
	}
	m := j.metrics()
	m.AddItems(TaskChainSync, "recorded", summary.Recorded)
	m.AddItems(TaskChainSync, "skipped", summary.Skipped)
	m.AddItems(TaskChainSync, "rejected", summary.Rejected)
	m.AddItems(TaskChainSync, "failed", summary.Failed)
	logger.Info("chain sync completed",
		slog.Int("events", summary.Events),
		slog.Int("recorded", summary.Recorded),
		slog.Int("failed", summary.Failed))
	return nil
}

func (j *ChainSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskChainSync))
	}
	return slog.Default().With(slog.String("job", TaskChainSync))
}

func (j *ChainSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
