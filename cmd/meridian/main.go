package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian/internal/accounts"
	"github.com/meridian-pos/meridian/internal/app"
	"github.com/meridian-pos/meridian/internal/audit"
	"github.com/meridian-pos/meridian/internal/ledger"
	"github.com/meridian-pos/meridian/internal/platform/cache"
	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/reports"
	"github.com/meridian-pos/meridian/internal/voucher"
	"github.com/meridian-pos/meridian/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reports fall back to direct reads", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := audit.NewLogger(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	reportsService := reports.NewService(reports.NewRepository(pool), reports.NewCache(redisClient, cfg.ReportCacheTTL), logger)
	reportsHandler := reports.NewHandler(logger, reportsService)

	voucherService := voucher.NewService(voucher.NewRepository(pool), logger)
	enqueuer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	voucherService.SetNotifier(enqueuer)
	voucherHandler := voucher.NewHandler(logger, voucherService)

	accountsService := accounts.NewService(accounts.NewRepository(pool), auditLogger, logger)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Pool:            pool,
		LedgerHandler:   ledgerHandler,
		VoucherHandler:  voucherHandler,
		ReportsHandler:  reportsHandler,
		AccountsHandler: accountsHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
