// Command a3hub runs the A3 document service: an organization-scoped store
// of A3 problem-solving documents with department-level authorization, a
// transactional audit trail and per-principal rate limiting.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kaizenhq/a3hub/pkg/api"
	"github.com/kaizenhq/a3hub/pkg/audit"
	"github.com/kaizenhq/a3hub/pkg/config"
	"github.com/kaizenhq/a3hub/pkg/documents"
	"github.com/kaizenhq/a3hub/pkg/observability"
	"github.com/kaizenhq/a3hub/pkg/ratelimit"
	"github.com/kaizenhq/a3hub/pkg/rbac"
	"github.com/kaizenhq/a3hub/pkg/validation"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "a3hub: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("port", cfg.Server.Port).Info("starting a3hub")

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	repo, err := documents.NewPostgresRepository(db)
	if err != nil {
		return err
	}
	auditLog, err := audit.NewSQLLogger(db)
	if err != nil {
		return err
	}
	memberships, err := rbac.NewResolver(repo, cfg.Limits.MembershipCacheSize)
	if err != nil {
		return err
	}

	validator := validation.NewValidator(&validation.Config{
		MaxDepth:        cfg.Limits.MaxContentDepth,
		MaxContentBytes: cfg.Limits.MaxContentBytes,
		MaxTitleLength:  cfg.Limits.MaxTitleLength,
	})

	limitConfig := &ratelimit.Config{
		Limit:  cfg.Limits.SearchRateLimit,
		Window: cfg.Limits.SearchRateWindow,
	}
	scheduler := cron.New()
	var limiterStore ratelimit.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		limiterStore = ratelimit.NewRedisStore(client, "ratelimit")
		logger.WithField("addr", cfg.Redis.Addr).Info("rate limiting via redis")
	} else {
		memStore := ratelimit.NewMemoryStore()
		limiterStore = memStore
		// Expired windows are harmless but accumulate; sweep them out
		// every few minutes.
		_, err := scheduler.AddFunc("@every 5m", func() {
			removed := memStore.Cleanup(limitConfig.Window, time.Now())
			if removed > 0 {
				logger.WithField("removed", removed).Debug("swept expired rate limit windows")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule limiter cleanup: %w", err)
		}
	}
	limiter := ratelimit.NewLimiter(limiterStore, limitConfig, nil)

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	service, err := documents.NewService(documents.ServiceConfig{
		Repository:  repo,
		Memberships: memberships,
		Validator:   validator,
		Limiter:     limiter,
		AuditLog:    auditLog,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.ServerConfig{
		Service:  service,
		AuditLog: auditLog,
		Limiter:  limiter,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	scheduler.Start()
	defer scheduler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("health server shutdown failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
