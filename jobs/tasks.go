package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/Koushith/Web3-Invoice-sub000/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskRecurrenceRun generates the recurring invoices that are due.
	TaskRecurrenceRun = "recurrence:run"
	// TaskOverdueSweep persists the overdue status of past-due invoices.
	TaskOverdueSweep = "invoices:overdue_sweep"
	// TaskChainSync reconciles payment-reference events into payments.
	TaskChainSync = "chain:sync"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	InvoiceID string `json:"invoiceId,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// NewRecurrenceRunTask constructs the recurrence task. Runs are singletons
// guarded by a redis lock, so retries are pointless.
func NewRecurrenceRunTask() *asynq.Task {
	return asynq.NewTask(TaskRecurrenceRun, nil, asynq.MaxRetry(0))
}

// NewOverdueSweepTask constructs the overdue sweep task.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueSweep, nil, asynq.MaxRetry(0))
}

// NewChainSyncTask constructs the payment-reference sync task.
func NewChainSyncTask() *asynq.Task {
	return asynq.NewTask(TaskChainSync, nil, asynq.MaxRetry(0))
}

// TaskByType builds a payload-less task by name for operator tooling.
func TaskByType(taskType string) (*asynq.Task, bool) {
	switch taskType {
	case TaskRecurrenceRun:
		return NewRecurrenceRunTask(), true
	case TaskOverdueSweep:
		return NewOverdueSweepTask(), true
	case TaskChainSync:
		return NewChainSyncTask(), true
	default:
		return nil, false
	}
}
