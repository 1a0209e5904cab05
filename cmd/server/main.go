package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"arbiter/internal/decision/handler"
	"arbiter/internal/decision/metrics"
	"arbiter/internal/decision/service"
	decisionstore "arbiter/internal/decision/store"
	"arbiter/internal/directory"
	"arbiter/internal/escalation"
	"arbiter/internal/legacy"
	"arbiter/internal/notify"
	"arbiter/internal/platform/config"
	"arbiter/internal/platform/httpserver"
	"arbiter/internal/platform/logger"
	"arbiter/internal/platform/redis"
	tenantstore "arbiter/internal/tenant/store"
	"arbiter/pkg/platform/middleware/requesttime"
	"arbiter/pkg/platform/middleware/tenantctx"
)

// main wires the stores, the inbox service, the escalation worker, and the
// HTTP surface. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var (
		decisions decisionstore.Store
		tenants   tenantstore.Store
		users     directory.Store
		legacySt  legacy.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		decisions = decisionstore.NewPostgresStore(db)
		tenants = tenantstore.NewPostgres(db)
		users = directory.NewPostgres(db)
		legacySt = legacy.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		decisions = decisionstore.NewMemoryStore()
		tenants = tenantstore.NewInMemory()
		users = directory.NewInMemory()
		legacySt = legacy.NewInMemory()
		log.Info("DATABASE_URL not set, using in-memory stores")
	}

	m := metrics.New()
	engine := legacy.NewEngine(legacySt, legacy.WithLogger(log))
	svc := service.New(decisions, engine,
		service.WithLogger(log),
		service.WithMetrics(m),
	)

	sender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	workerOpts := []escalation.WorkerOption{
		escalation.WithLogger(log),
		escalation.WithMetrics(m),
	}
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		workerOpts = append(workerOpts, escalation.WithCooldownStore(escalation.NewRedisCooldown(redisClient)))
		log.Info("using redis escalation cooldown store")
	}
	worker := escalation.NewWorker(tenants, decisions, users, sender, cfg.Worker, workerOpts...)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(tenantctx.Middleware(tenants, log))
		handler.New(svc, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting arbiter", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
