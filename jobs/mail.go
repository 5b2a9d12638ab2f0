package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/Koushith/Web3-Invoice-sub000/internal/jobs"
)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailJob handles TaskTypeSendEmail tasks.
type MailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMailJob constructs the mail handler.
func NewMailJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	return &MailJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle delivers one email. Malformed payloads are dropped without retry.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return errors.New("mail: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode mail payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("mail payload without recipient: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("invoice_id", payload.InvoiceID))
	if err = j.Mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		logger.Warn("send email failed", slog.Any("error", err))
		return err
	}
	logger.Info("email sent", slog.String("subject", payload.Subject))
	return nil
}

func (j *MailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeSendEmail))
	}
	return slog.Default().With(slog.String("job", TaskTypeSendEmail))
}

func (j *MailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
