package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/Koushith/Web3-Invoice-sub000/internal/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/internal/recurrence"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// RecurrenceRunner is satisfied by recurrence.Scheduler.
type RecurrenceRunner interface {
	Run(ctx context.Context) (recurrence.Summary, error)
}

// RecurrenceRunJob triggers one scheduler pass.
type RecurrenceRunJob struct {
	Runner  RecurrenceRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRecurrenceRunJob constructs the job handler.
func NewRecurrenceRunJob(runner RecurrenceRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecurrenceRunJob {
	return &RecurrenceRunJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// Handle executes the run. A run already in progress elsewhere is not an error.
func (j *RecurrenceRunJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Runner == nil {
		return errors.New("recurrence run: handler not configured")
	}
	logger := j.logger()
	tracker := j.metrics().Track(TaskRecurrenceRun)
	defer func() {
		err = tracker.End(err)
	}()

	summary, err := j.Runner.Run(ctx)
	if errors.Is(err, shared.ErrLockHeld) {
		logger.Info("recurrence run skipped, another run holds the lock")
		return nil
	}
	if err != nil {
		logger.Error("recurrence run failed", slog.Any("error", err))
		return err
	}
	m := j.metrics()
	m.AddItems(TaskRecurrenceRun, "generated", summary.Generated)
	m.AddItems(TaskRecurrenceRun, "seeded", summary.Seeded)
	m.AddItems(TaskRecurrenceRun, "failed", summary.Failed)
	m.AddItems(TaskRecurrenceRun, "notified", summary.Notified)
	logger.Info("recurrence run completed",
		slog.Int("scanned", summary.Scanned),
		slog.Int("generated", summary.Generated),
		slog.Int("failed", summary.Failed))
	return nil
}

func (j *RecurrenceRunJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRecurrenceRun))
	}
	return slog.Default().With(slog.String("job", TaskRecurrenceRun))
}

func (j *RecurrenceRunJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
