package notify

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
	"github.com/Koushith/Web3-Invoice-sub000/jobs"
)

// Enqueuer submits send-email tasks.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// QueueDispatcher hands notifications to the worker through the mail:send task.
// A successful enqueue counts as sent; SMTP delivery is retried by the worker.
type QueueDispatcher struct {
	queue Enqueuer
}

// NewQueueDispatcher constructs a QueueDispatcher.
func NewQueueDispatcher(queue Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

// Dispatch implements invoices.Dispatcher.
func (d *QueueDispatcher) Dispatch(ctx context.Context, inv invoices.Invoice, customerEmail, publicURL string) error {
	email, err := Compose(Message{Invoice: inv, CustomerEmail: customerEmail, PublicURL: publicURL})
	if err != nil {
		return err
	}
	if d == nil || d.queue == nil {
		return fmt.Errorf("notification queue not configured: %w", shared.ErrExternalService)
	}
	_, err = d.queue.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:        email.To,
		Subject:   email.Subject,
		Body:      email.Body,
		InvoiceID: inv.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("enqueue invoice email: %v: %w", err, shared.ErrExternalService)
	}
	return nil
}
