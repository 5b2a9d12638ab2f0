package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Koushith/Web3-Invoice-sub000/internal/chain"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices/invoicetest"
	jobmetrics "github.com/Koushith/Web3-Invoice-sub000/internal/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/internal/numbering"
	"github.com/Koushith/Web3-Invoice-sub000/internal/recurrence"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

type recordingMailer struct {
	to, subject, body string
	err               error
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

func TestMailJob(t *testing.T) {
	mailer := &recordingMailer{}
	job := NewMailJob(mailer, discardLogger(), testMetrics())

	task, err := NewSendEmailTask(SendEmailPayload{To: "bruce@wayne.com", Subject: "Invoice INV-1", Body: "hi", InvoiceID: "x"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "bruce@wayne.com", mailer.to)
	require.Equal(t, "Invoice INV-1", mailer.subject)

	mailer.err = errors.New("smtp down")
	require.Error(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	empty, _ := json.Marshal(SendEmailPayload{Subject: "s"})
	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, empty))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubRunner struct {
	summary recurrence.Summary
	err     error
	calls   int
}

func (s *stubRunner) Run(ctx context.Context) (recurrence.Summary, error) {
	s.calls++
	return s.summary, s.err
}

func TestRecurrenceRunJob(t *testing.T) {
	runner := &stubRunner{summary: recurrence.Summary{Scanned: 3, Generated: 2, Failed: 1}}
	job := NewRecurrenceRunJob(runner, discardLogger(), testMetrics())
	require.NoError(t, job.Handle(context.Background(), NewRecurrenceRunTask()))
	require.Equal(t, 1, runner.calls)

	runner.err = shared.ErrLockHeld
	require.NoError(t, job.Handle(context.Background(), NewRecurrenceRunTask()))

	runner.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), NewRecurrenceRunTask()))
}

type stubSyncer struct {
	err error
}

func (s stubSyncer) Sync(ctx context.Context) (chain.SyncSummary, error) {
	return chain.SyncSummary{Events: 2, Recorded: 1, Skipped: 1}, s.err
}

func TestChainSyncJob(t *testing.T) {
	require.NoError(t, NewChainSyncJob(stubSyncer{}, discardLogger(), testMetrics()).Handle(context.Background(), NewChainSyncTask()))
	require.NoError(t, NewChainSyncJob(stubSyncer{err: shared.ErrLockHeld}, nil, nil).Handle(context.Background(), NewChainSyncTask()))
	require.Error(t, NewChainSyncJob(stubSyncer{err: errors.New("boom")}, nil, nil).Handle(context.Background(), NewChainSyncTask()))
}

func pastDueInvoice(orgID uuid.UUID, due time.Time) invoices.Invoice {
	return invoices.Invoice{
		ID:             uuid.New(),
		OrganizationID: orgID,
		CustomerID:     uuid.New(),
		InvoiceNumber:  "INV-" + uuid.NewString()[:8],
		Status:         invoices.StatusSent,
		Currency:       "USD",
		LineItems: []invoices.LineItem{{
			Description: "Retainer",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(100),
			Amount:      decimal.NewFromInt(100),
		}},
		Subtotal:       decimal.NewFromInt(100),
		TaxRate:        decimal.Zero,
		TaxAmount:      decimal.Zero,
		Total:          decimal.NewFromInt(100),
		AmountPaid:     decimal.Zero,
		AmountDue:      decimal.NewFromInt(100),
		IssueDate:      due.AddDate(0, 0, -14),
		DueDate:        &due,
		Version:        1,
		CreatedAt:      due.AddDate(0, 0, -14),
		UpdatedAt:      due.AddDate(0, 0, -14),
	}
}

func TestOverdueSweepMarksPastDueInvoices(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := invoicetest.NewMemoryRepository()
	dir := invoicetest.NewDirectory(repo)
	svc := invoices.NewService(repo, numbering.NewAllocator(dir), dir, dir.Customers(), discardLogger())
	svc.WithNow(func() time.Time { return now })

	orgID := uuid.New()
	late := pastDueInvoice(orgID, now.AddDate(0, 0, -3))
	later := pastDueInvoice(orgID, now.AddDate(0, 0, -10))
	current := pastDueInvoice(orgID, now.AddDate(0, 0, 5))
	repo.Put(late)
	repo.Put(later)
	repo.Put(current)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	job := NewOverdueSweepJob(repo, svc, client, discardLogger(), testMetrics())
	job.clock = func() time.Time { return now }

	summary, err := job.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepSummary{Scanned: 2, Marked: 2}, summary)

	for _, id := range []uuid.UUID{late.ID, later.ID} {
		inv, ok := repo.Find(id)
		require.True(t, ok)
		require.Equal(t, invoices.StatusOverdue, inv.Status)
	}
	inv, _ := repo.Find(current.ID)
	require.Equal(t, invoices.StatusSent, inv.Status)

	summary, err = job.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Scanned)

	lock, err := shared.AcquireRunLock(context.Background(), client, shared.InvoiceSweepLockKey(), time.Minute)
	require.NoError(t, err)
	defer lock.Release(context.Background())
	_, err = job.Sweep(context.Background())
	require.ErrorIs(t, err, shared.ErrLockHeld)
	require.NoError(t, job.Handle(context.Background(), NewOverdueSweepTask()))
}

type failingRefresher struct{}

func (failingRefresher) RefreshStatus(ctx context.Context, orgID, id uuid.UUID) (invoices.Invoice, bool, error) {
	return invoices.Invoice{}, false, errors.New("conflict")
}

func TestOverdueSweepStopsOnRepeatedFailures(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := invoicetest.NewMemoryRepository()
	repo.Put(pastDueInvoice(uuid.New(), now.AddDate(0, 0, -1)))

	job := NewOverdueSweepJob(repo, failingRefresher{}, nil, discardLogger(), testMetrics())
	job.clock = func() time.Time { return now }

	summary, err := job.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepSummary{Scanned: 1, Failed: 1}, summary)
}

func TestTaskByType(t *testing.T) {
	for _, name := range []string{TaskRecurrenceRun, TaskOverdueSweep, TaskChainSync} {
		task, ok := TaskByType(name)
		require.True(t, ok)
		require.Equal(t, name, task.Type())
	}
	_, ok := TaskByType(TaskTypeSendEmail)
	require.False(t, ok)
}

func TestHealthWithoutInspector(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(nil, discardLogger()).MountRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0,"paused":false}`, rec.Body.String())
}

type stubInspector struct {
	err       error
	scheduled []*asynq.TaskInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.QueueInfo{Queue: queue, Pending: 2, Scheduled: len(s.scheduled)}, nil
}

func (s stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func TestHandlerReportsQueueState(t *testing.T) {
	next := time.Date(2024, 5, 1, 0, 15, 0, 0, time.UTC)
	router := chi.NewRouter()
	NewHandler(stubInspector{scheduled: []*asynq.TaskInfo{{ID: "s-1", Type: TaskOverdueSweep, NextProcessAt: next}}}, discardLogger()).MountRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":2,"active":0,"scheduled":1,"retry":0,"archived":0,"paused":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scheduled", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"tasks":[{"id":"s-1","type":"invoices:overdue_sweep","nextProcessAt":"2024-05-01T00:15:00Z"}]}`, rec.Body.String())
}

func TestHandlerQueueUnavailable(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, discardLogger()).MountRoutes(router)

	for _, path := range []string{"/health", "/scheduled"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:    discardLogger(),
		Cron:      []CronRegistration{{Spec: "every tuesday", Task: NewOverdueSweepTask()}},
	})
	require.Error(t, err)
}
