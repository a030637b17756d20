package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"leavedesk/internal/domain/attendance"
	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/platform/config"
	cryptoutil "leavedesk/internal/platform/crypto"
	"leavedesk/internal/platform/db"
	"leavedesk/internal/platform/jobs"
	"leavedesk/internal/platform/metrics"
	"leavedesk/internal/platform/querier"
	"leavedesk/internal/transport/http/api"
	attendancehandler "leavedesk/internal/transport/http/handlers/attendance"
	audithandler "leavedesk/internal/transport/http/handlers/audit"
	authhandler "leavedesk/internal/transport/http/handlers/auth"
	leavehandler "leavedesk/internal/transport/http/handlers/leave"
	"leavedesk/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

// Deps are the external resources the router is built on.
type Deps struct {
	DB      querier.Querier
	Ping    func(ctx context.Context) error
	Metrics *metrics.Collector
}

type App struct {
	Config config.Config
	Router http.Handler
	Jobs   *jobs.Service
	close  func()
}

// New connects to Postgres, applies migrations and seed data when enabled,
// and assembles the router.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	if n, err := jobs.NewRunLog(pool).AbandonStale(ctx); err != nil {
		slog.WarnContext(ctx, "abandon stale job runs failed", "err", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "abandoned stale job runs", "count", n)
	}

	router, jobsSvc, err := NewRouter(cfg, Deps{DB: pool, Ping: pool.Ping, Metrics: metrics.New()})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &App{Config: cfg, Router: router, Jobs: jobsSvc, close: pool.Close}, nil
}

// NewRouter wires stores, services and handlers over deps.
func NewRouter(cfg config.Config, deps Deps) (chi.Router, *jobs.Service, error) {
	box, err := cryptoutil.NewBox(cfg.DataEncryptionKey, "mfa_secret")
	if err != nil {
		return nil, nil, fmt.Errorf("encryption key: %w", err)
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.New()
	}

	defaults := leave.Settings{
		LeavesPerMonth:    cfg.LeavePerMonth,
		MaxCarryForward:   cfg.LeaveMaxCarryForward,
		MaxLeavesPerMonth: cfg.LeaveMaxPerMonth,
		GPSCheckinEnabled: cfg.GPSCheckinEnabled,
	}

	authStore := auth.NewStore(deps.DB)
	authSvc := auth.NewService(authStore, cfg.JWTSecret, box)
	auditSvc := audit.New(deps.DB)

	leaveStore := leave.NewStore(deps.DB)
	leaveSvc := leave.NewService(leaveStore, defaults)
	leaveSvc.Metrics = collector

	attendanceSvc := attendance.NewService(attendance.NewStore(deps.DB), leaveSvc)
	attendanceSvc.Metrics = collector

	runLog := jobs.NewRunLog(deps.DB)
	jobsSvc := jobs.New(runLog, leaveStore, leaveSvc.Defaults, cfg.SnapshotInterval)
	jobsSvc.Metrics = collector

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, authStore))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.With(middleware.RequirePermission(auth.PermSystemAdmin, authStore)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, collector.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(authSvc)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)
		r.Post("/auth/refresh", authHandler.HandleRefresh)
		r.Post("/auth/mfa/setup", authHandler.HandleMFASetup)
		r.Post("/auth/mfa/enable", authHandler.HandleMFAEnable)
		r.Post("/auth/mfa/disable", authHandler.HandleMFADisable)

		leaveHandler := leavehandler.NewHandler(leaveSvc, authStore, auditSvc, jobsSvc, runLog, middleware.NewIdempotencyStore(deps.DB))
		leaveHandler.RegisterRoutes(r)

		attendanceHandler := attendancehandler.NewHandler(attendanceSvc, authStore, auditSvc)
		attendanceHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(auditSvc, authStore)
		auditHandler.RegisterRoutes(r)
	})

	return router, jobsSvc, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	if a.close != nil {
		defer a.close()
	}
	a.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("leavedesk server listening", "addr", a.Config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.Jobs.Wait()
	return nil
}
