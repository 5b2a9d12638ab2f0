package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/Koushith/Web3-Invoice-sub000/internal/activity"
	"github.com/Koushith/Web3-Invoice-sub000/internal/auth"
	"github.com/Koushith/Web3-Invoice-sub000/internal/chain"
	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/export"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/notify"
	"github.com/Koushith/Web3-Invoice-sub000/internal/numbering"
	"github.com/Koushith/Web3-Invoice-sub000/internal/observability"
	"github.com/Koushith/Web3-Invoice-sub000/internal/organizations"
	"github.com/Koushith/Web3-Invoice-sub000/internal/payments"
	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/cache"
	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/db"
	platformmongo "github.com/Koushith/Web3-Invoice-sub000/internal/platform/mongo"
	"github.com/Koushith/Web3-Invoice-sub000/internal/recurrence"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
	"github.com/Koushith/Web3-Invoice-sub000/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/report"
)

// Services is the wired object graph shared by the server, worker and CLI.
type Services struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Mongo *mongodriver.Client
	Queue *jobs.Client

	Metrics *observability.Metrics

	Organizations *organizations.Service
	Customers     *customers.Service
	Invoices      *invoices.Service
	InvoiceRepo   invoices.Repository
	Numbers       *numbering.Allocator
	Payments      *payments.Recorder
	Activity      activity.Store
	Scheduler     *recurrence.Scheduler
	Export        *export.Service
	Auth          *auth.Service
	Idempotency   *shared.IdempotencyStore
	Report        *report.Client
	Chain         *chain.Syncer

	logger *slog.Logger
}

// NewServices connects to the backing stores and wires every component.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	pool, err := db.New(ctx, db.Config{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, ApplicationName: "invoicing"})
	if err != nil {
		return nil, err
	}
	s := &Services{Pool: pool, logger: logger}

	s.Redis, err = cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		s.Close()
		return nil, err
	}

	switch cfg.ActivityBackend {
	case "mongo":
		client, database, err := platformmongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Mongo = client
		store := activity.NewMongoStore(database)
		if err := store.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("activity indexes: %w", err)
		}
		s.Activity = store
	default:
		s.Activity = activity.NewPostgresStore(pool)
	}

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Queue = queue
	s.Metrics = observability.NewMetrics()
	s.Idempotency = shared.NewIdempotencyStore(pool)

	s.Organizations = organizations.NewService(organizations.NewRepository(pool))
	s.Customers = customers.NewService(customers.NewRepository(pool))
	s.Numbers = numbering.NewAllocator(numbering.NewStore(pool))
	s.InvoiceRepo = invoices.NewRepository(pool)

	dispatcher := notify.NewQueueDispatcher(queue)

	s.Invoices = invoices.NewService(s.InvoiceRepo, s.Numbers, s.Organizations, s.Customers, logger)
	s.Invoices.SetPublicURL(cfg.AppPublicURL)
	s.Invoices.SetDispatcher(dispatcher)
	s.Invoices.SetActivity(s.Activity)

	s.Payments = payments.NewRecorder(payments.NewRepository(pool), logger)
	s.Payments.SetNotes(s.Invoices)
	s.Payments.SetActivity(s.Activity)
	s.Payments.SetMetrics(s.Metrics)
	s.Invoices.SetSettler(s.Payments)

	if cfg.ChainEnabled() {
		client := chain.NewClient(cfg.ChainAPIURL, cfg.ChainAPIKey, nil)
		s.Invoices.SetPaymentRequester(client)
		s.Chain = chain.NewSyncer(client, s.InvoiceRepo, s.Payments, s.Redis, logger)
	}

	s.Scheduler = recurrence.NewScheduler(s.InvoiceRepo, s.Numbers, s.Customers, logger)
	s.Scheduler.SetRedis(s.Redis)
	s.Scheduler.SetDispatcher(dispatcher)
	s.Scheduler.SetActivity(s.Activity)
	s.Scheduler.SetPublicURL(s.Invoices.PublicURL)

	s.Report = report.NewClient(cfg.GotenbergURL)
	var renderer export.Renderer = export.NewPDFRenderer()
	if cfg.PDFRenderer == "gotenberg" {
		renderer = export.NewHTMLRenderer(s.Report)
	}
	s.Export = export.NewService(s.Invoices, s.Organizations, s.Customers, renderer, logger)

	s.Auth = auth.NewService(auth.NewRepository(pool), auth.NewTokenInfoVerifier(cfg.IdentityTokenInfoURL, nil), logger)
	return s, nil
}

// Close releases every connection. It is safe on a partially built graph.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Queue != nil {
		if err := s.Queue.Close(); err != nil {
			s.logger.Warn("queue close", slog.Any("error", err))
		}
	}
	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(context.Background()); err != nil {
			s.logger.Warn("mongo disconnect", slog.Any("error", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
