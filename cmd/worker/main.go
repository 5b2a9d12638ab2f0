package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/Koushith/Web3-Invoice-sub000/internal/app"
	jobmetrics "github.com/Koushith/Web3-Invoice-sub000/internal/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/internal/notify"
	"github.com/Koushith/Web3-Invoice-sub000/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer services.Close()

	metrics := jobmetrics.NewMetrics(services.Metrics.Registerer())

	var mailer jobs.Mailer = notify.LogMailer{Logger: logger}
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	mailJob := jobs.NewMailJob(mailer, logger, metrics)
	recurrenceJob := jobs.NewRecurrenceRunJob(services.Scheduler, logger, metrics)
	sweepJob := jobs.NewOverdueSweepJob(services.InvoiceRepo, services.Invoices, services.Redis, logger, metrics)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
		{Type: jobs.TaskRecurrenceRun, Handler: recurrenceJob.Handle},
		{Type: jobs.TaskOverdueSweep, Handler: sweepJob.Handle},
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.RecurrenceCron, Task: jobs.NewRecurrenceRunTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		{Spec: cfg.OverdueCron, Task: jobs.NewOverdueSweepTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
	}
	if services.Chain != nil {
		chainJob := jobs.NewChainSyncJob(services.Chain, logger, metrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskChainSync, Handler: chainJob.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ChainSyncCron, Task: jobs.NewChainSyncTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Handlers:    handlers,
		Cron:        cron,
		Concurrency: cfg.WorkerConcurrency,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
