package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/tiffinbox/backend/internal/auth"
	"github.com/tiffinbox/backend/internal/catalog"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/config"
	"github.com/tiffinbox/backend/internal/dashboard"
	"github.com/tiffinbox/backend/internal/events"
	"github.com/tiffinbox/backend/internal/execution"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/metrics"
	"github.com/tiffinbox/backend/internal/middleware"
	"github.com/tiffinbox/backend/internal/migration"
	"github.com/tiffinbox/backend/internal/orders"
	"github.com/tiffinbox/backend/internal/pause"
	"github.com/tiffinbox/backend/internal/repository"
	"github.com/tiffinbox/backend/internal/router"
	"github.com/tiffinbox/backend/internal/scheduler"
	"github.com/tiffinbox/backend/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	loc, _ := cfg.TimeLocation()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := migration.Up(pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied")

	// Events: RabbitMQ when configured, otherwise dropped.
	var publisher events.Publisher = events.NopPublisher{Log: logger}
	if cfg.AMQPURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.EventsExchange, logger)
		if err != nil {
			slog.Error("Failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		publisher = rp
	}
	defer publisher.Close()

	// Projection cache: Redis is shared across replicas, memory is per process.
	var cache scheduler.Cache = scheduler.NewMemoryCache(cfg.ProjectionCacheTTL, clock.Real())
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Cannot reach Redis", "error", err)
			os.Exit(1)
		}
		cache = scheduler.NewRedisCache(rdb, "projection", cfg.ProjectionCacheTTL, logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Ledger. Hooks run after commit; the projector is bound below.
	var projector *scheduler.Projector
	creditRepo := repository.NewCreditRepo(pool)
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool, creditRepo),
		ledger.WithLocation(loc),
		ledger.WithLogger(logger),
		ledger.WithHook(func(ctx context.Context, c ledger.Change) { projector.InvalidateHook()(ctx, c) }),
		ledger.WithHook(m.LedgerHook()),
		ledger.WithHook(events.LedgerHook(publisher, logger)),
	)

	ordersSvc := orders.NewService(orders.NewRepository(pool), publisher, logger)
	pauseSvc := pause.NewService(pause.NewRepository(pool), ledgerSvc, clock.Real(), loc, logger)
	projector = scheduler.NewProjector(ledgerSvc, pauseSvc, ordersSvc, cache,
		scheduler.WithLocation(loc),
		scheduler.WithHorizon(cfg.ProjectionHorizonDays),
		scheduler.WithMetrics(m),
		scheduler.WithLogger(logger),
	)

	plans := catalog.NewService(catalog.NewRepository(pool))
	decoder, err := services.NewCartDecoder(plans)
	if err != nil {
		slog.Error("Cart schema init failed", "error", err)
		os.Exit(1)
	}
	activator := services.NewActivationService(ledgerSvc, clock.Real(), loc, cfg.SubscriptionTermDays, logger)

	// Jobs: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn services.EnqueueReconcileFunc
	enqueueReconcile := func(ctx context.Context, args execution.ReconcileCheckoutArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("river insert not wired")
		}
		return fn(ctx, args)
	}
	wallet := services.NewWalletService(ledgerSvc, ordersSvc, activator, enqueueReconcile, clock.Real(), loc, m, logger)
	autoOrders := services.NewAutoOrderService(ledgerSvc, projector, ordersSvc, cfg.AutoOrderConcurrency, m, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewReconcileCheckoutWorker(wallet))
	river.AddWorker(workers, execution.NewAutoOrderWorker(autoOrders))

	autoOrderJob, err := execution.NewAutoOrderPeriodicJob(cfg.AutoOrderSchedule, autoOrders.Today)
	if err != nil {
		slog.Error("Invalid AUTO_ORDER_SCHEDULE", "error", err)
		os.Exit(1)
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{autoOrderJob},
		Logger:       logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, args execution.ReconcileCheckoutArgs) error {
		_, err := riverClient.Insert(ctx, args, &river.InsertOpts{MaxAttempts: 25})
		return err
	}
	insertMu.Unlock()

	// HTTP
	authSvc := auth.NewService(cfg.JWTSecret, ledgerSvc)
	apiKeyRepo := repository.NewAPIKeyRepo(pool)
	dashHandler := dashboard.NewHandler(ledgerSvc, wallet, decoder, projector, pauseSvc, plans, logger)
	ordersHandler := orders.NewHandler(ordersSvc, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", router.New(middleware.SessionAuth(authSvc, logger), dashHandler, ordersHandler))
	RegisterInternalRoutes(mux, apiKeyRepo, ledgerSvc, activator, plans, ordersHandler, loc, logger)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(mux)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := riverClient.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return riverClient.Stop(stopCtx)
	})
	g.Go(func() error {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
