package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian/internal/accounts"
	"github.com/meridian-pos/meridian/internal/ledger"
	"github.com/meridian-pos/meridian/internal/reports"
	"github.com/meridian-pos/meridian/internal/voucher"
	"github.com/meridian-pos/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Pool            *pgxpool.Pool
	LedgerHandler   *ledger.Handler
	VoucherHandler  *voucher.Handler
	ReportsHandler  *reports.Handler
	AccountsHandler *accounts.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Warn("health check ping", slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(IdentityMiddleware(params.Logger))

		api.Route("/ledger", params.LedgerHandler.MountRoutes)
		api.Route("/vouchers", params.VoucherHandler.MountRoutes)
		api.Route("/reports", params.ReportsHandler.MountRoutes)
		api.Route("/accounts", params.AccountsHandler.MountRoutes)
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
