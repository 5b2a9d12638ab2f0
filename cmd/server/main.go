package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Koushith/Web3-Invoice-sub000/internal/activity"
	"github.com/Koushith/Web3-Invoice-sub000/internal/app"
	"github.com/Koushith/Web3-Invoice-sub000/internal/auth"
	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/export"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/organizations"
	"github.com/Koushith/Web3-Invoice-sub000/internal/payments"
	"github.com/Koushith/Web3-Invoice-sub000/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Authenticator:        services.Auth,
		AuthHandler:          auth.NewHandler(logger, services.Auth),
		OrganizationHandler:  organizations.NewHandler(logger, services.Organizations),
		CustomerHandler:      customers.NewHandler(logger, services.Customers),
		InvoiceHandler:       invoices.NewHandler(logger, services.Invoices),
		PublicInvoiceHandler: invoices.NewPublicHandler(logger, services.Invoices),
		ExportHandler:        export.NewHandler(logger, services.Export),
		PublicExportHandler:  export.NewPublicHandler(logger, services.Export),
		ActivityHandler:      activity.NewHandler(logger, services.Activity),
		PaymentHandler:       payments.NewHandler(logger, services.Payments, services.Idempotency),
		ReportHandler:        report.NewHandler(services.Report, logger),
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              services.Metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
