package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Koushith/Web3-Invoice-sub000/internal/activity"
	"github.com/Koushith/Web3-Invoice-sub000/internal/auth"
	"github.com/Koushith/Web3-Invoice-sub000/internal/customers"
	"github.com/Koushith/Web3-Invoice-sub000/internal/export"
	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/observability"
	"github.com/Koushith/Web3-Invoice-sub000/internal/organizations"
	"github.com/Koushith/Web3-Invoice-sub000/internal/payments"
	"github.com/Koushith/Web3-Invoice-sub000/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	Authenticator auth.Authenticator

	AuthHandler          *auth.Handler
	OrganizationHandler  *organizations.Handler
	CustomerHandler      *customers.Handler
	InvoiceHandler       *invoices.Handler
	PublicInvoiceHandler *invoices.PublicHandler
	ExportHandler        *export.Handler
	PublicExportHandler  *export.PublicHandler
	ActivityHandler      *activity.Handler
	PaymentHandler       *payments.Handler
	ReportHandler        *report.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/public/invoices", func(r chi.Router) {
		if params.PublicInvoiceHandler != nil {
			params.PublicInvoiceHandler.MountRoutes(r)
		}
		if params.PublicExportHandler != nil {
			params.PublicExportHandler.MountRoutes(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(params.Authenticator, params.Logger))

		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.OrganizationHandler != nil {
			r.Route("/organizations", params.OrganizationHandler.MountRoutes)
		}
		if params.CustomerHandler != nil {
			r.Route("/customers", params.CustomerHandler.MountRoutes)
		}
		r.Route("/invoices", func(r chi.Router) {
			if params.InvoiceHandler != nil {
				params.InvoiceHandler.MountRoutes(r)
			}
			if params.ExportHandler != nil {
				params.ExportHandler.MountRoutes(r)
			}
			if params.ActivityHandler != nil {
				params.ActivityHandler.MountRoutes(r)
			}
		})
		if params.PaymentHandler != nil {
			r.Route("/payments", params.PaymentHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/report", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
