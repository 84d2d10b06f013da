// ymm-service
//
// Year/Make/Model compatibility engine for a hosted e-commerce catalog.
// Exposes a REST API and a gRPC service used by storefront widgets:
//   - makes, models, years: distinct vehicle facets of a store
//   - search(year, make, model): products compatible with one vehicle
//   - products: one page of YMM-tagged products
//   - vehicles: locally managed vehicle ranges
//
// Answers are cached per store in Redis (or in memory) and optionally
// pre-warmed on a cron schedule.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ymmfilter/compat-service/internal/cache"
	"ymmfilter/compat-service/internal/catalog"
	"ymmfilter/compat-service/internal/config"
	"ymmfilter/compat-service/internal/credential"
	"ymmfilter/compat-service/internal/db"
	"ymmfilter/compat-service/internal/grpcserver"
	"ymmfilter/compat-service/internal/metrics"
	"ymmfilter/compat-service/internal/scheduler"
	"ymmfilter/compat-service/internal/vehicles"
	"ymmfilter/compat-service/internal/ymm"
)

const version = "1.0.0"

// writeMargin covers encoding and writing a response after a cold walk.
const writeMargin = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "ymm-service")
	slog.SetDefault(logger)

	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "config error", err)
	}
	tune := cfg.Tuning

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	logger.Info("connecting to PostgreSQL")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "postgres", err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		fatal(logger, "postgres schema", err)
	}
	logger.Info("postgres connected")

	// ── Result cache ─────────────────────────────────────────────────────────
	var (
		store  cache.Store
		purger scheduler.Purger
	)
	switch cfg.CacheBackend {
	case "redis":
		logger.Info("connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			fatal(logger, "redis", err)
		}
		defer rdb.Close()
		store = cache.NewRedisStore(rdb)
		logger.Info("redis connected")
	default:
		mem := cache.NewMemoryStore()
		store, purger = mem, mem
		logger.Info("using in-memory result cache")
	}

	// ── Metrics ──────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ── Engine ───────────────────────────────────────────────────────────────
	client := catalog.NewClient(
		catalog.WithTimeouts(tune.Walker.PageTimeout, tune.Walker.EnrichTimeout),
		catalog.WithClientRecorder(m),
	)
	walker := catalog.NewWalker(client,
		catalog.WithPageSize(tune.Walker.PageSize),
		catalog.WithMaxPages(tune.Walker.MaxPages),
		catalog.WithGate(func() catalog.Gate { return catalog.NewIntervalGate(tune.Walker.EnrichInterval) }),
		catalog.WithLogger(logger),
		catalog.WithRecorder(m),
	)
	results := cache.New(store, logger, m)

	registry := credential.NewPGRegistry(pool)
	resolver := credential.Default(registry, cfg.UpstreamBaseURL, logger)
	admin := credential.Admin(registry, cfg.UpstreamBaseURL, logger)

	vehicleSvc := vehicles.NewService(vehicles.NewPGRepository(pool), nil, tune.Search.VehicleYearsAhead)
	svc := ymm.NewService(walker, vehicleSvc, results, ymm.Options{
		ListTTL:      tune.Cache.ListTTL,
		AggregateTTL: tune.Cache.AggregateTTL,
		YearsAhead:   tune.Search.YearsAhead,
		Logger:       logger,
	})
	vehicleSvc.SetInvalidator(svc)

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(registry, svc, resolver, purger, cfg.WarmupSchedule, logger)
	if err := sched.Start(ctx); err != nil {
		fatal(logger, "scheduler", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(ymm.RequestLogger(logger))
	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Handler(reg))

	h := ymm.NewHandler(svc, vehicleSvc, resolver, admin, []byte(cfg.SessionSecret), logger)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		// A cold search walks the whole catalog before it can answer.
		WriteTimeout: tune.Walker.WalkBudget() + writeMargin,
	}

	go func() {
		logger.Info("http listening", "version", version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http server error", err)
		}
	}()

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		fatal(logger, "grpc listen", err)
	}
	gs := grpc.NewServer()
	grpcserver.Register(gs, grpcserver.NewServer(svc, resolver))
	hs := health.NewServer()
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	go func() {
		logger.Info("grpc listening", "port", cfg.GRPCPort)
		if err := gs.Serve(lis); err != nil {
			fatal(logger, "grpc server error", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	hs.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}
	gs.GracefulStop()
	logger.Info("stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "ymm-service",
		"version": version,
	})
}
