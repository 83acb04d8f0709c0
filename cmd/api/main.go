package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/fixmarket/backend/internal/account"
	"github.com/fixmarket/backend/internal/auth"
	"github.com/fixmarket/backend/internal/config"
	"github.com/fixmarket/backend/internal/contacts"
	"github.com/fixmarket/backend/internal/jobs"
	"github.com/fixmarket/backend/internal/ledger"
	"github.com/fixmarket/backend/internal/payments"
	"github.com/fixmarket/backend/internal/pricing"
	"github.com/fixmarket/backend/internal/refund"
	"github.com/fixmarket/backend/internal/repository"
	"github.com/fixmarket/backend/internal/router"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running and migrated, e.g. go run ./cmd/migrate", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo)

	userRepo := repository.NewUserRepo(pool)
	txRepo := repository.NewTransactionRepo(pool)
	settingsRepo := repository.NewSettingsRepo(pool)

	// Refund fan-out
	coordinator := refund.NewCoordinator(ledgerSvc, userRepo, logger)

	// Jobs: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn jobs.InsertRefundJobTxFunc
	insertRefundJob := func(ctx context.Context, tx pgx.Tx, args refund.RefundJobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	jobsRepo := jobs.NewRepository(pool)
	jobsSvc := jobs.NewService(jobsRepo, insertRefundJob, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, refund.NewRefundJobWorker(coordinator, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args refund.RefundJobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Pricing
	calculator := pricing.NewCalculator(settingsRepo, jobsRepo, logger)

	// Use cases and handlers
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo)
	authHandler := auth.NewHandler(authSvc, logger)

	jobsHandler := jobs.NewHandler(jobsSvc, logger)

	contactsSvc := contacts.NewService(jobsRepo, calculator, ledgerSvc, logger)
	contactsHandler := contacts.NewHandler(contactsSvc, logger)

	accountHandler := account.NewHandler(userRepo, txRepo, settingsRepo, logger)
	paymentsHandler := payments.NewHandler(ledgerSvc, cfg.WebhookSecret, logger)

	apiRouter := router.New(authHandler, jobsHandler, contactsHandler, accountHandler, paymentsHandler, authSvc)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes refund jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
