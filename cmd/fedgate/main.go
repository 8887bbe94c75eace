package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/lockhaven/fedgate/pkg/config"
	"github.com/lockhaven/fedgate/pkg/httputil"
	"github.com/lockhaven/fedgate/pkg/observability"
	"github.com/lockhaven/fedgate/pkg/scim"
	"github.com/lockhaven/fedgate/pkg/sso"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fedgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	factory := sso.NewValidatorFactory(cfg.Federation.BaseURL, sso.NewDirectoryBinder())
	configs := sso.NewConfigStore(store, factory, logger)

	if cfg.Federation.SeedFile != "" {
		seeder := sso.NewSeedLoader(configs, logger)
		n, err := seeder.Load(ctx, cfg.Federation.SeedFile)
		if err != nil {
			return fmt.Errorf("failed to load seed file: %w", err)
		}
		logger.WithField("configs", n).Info("seed file loaded")
		if err := seeder.Watch(ctx, cfg.Federation.SeedFile); err != nil {
			return fmt.Errorf("failed to watch seed file: %w", err)
		}
	}

	provisioner := sso.NewUserProvisioner(store, logger, metrics)
	sessions := sso.NewSessionManager(store, logger, metrics)
	if err := sessions.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session manager: %w", err)
	}

	authenticator := sso.NewAuthenticator(configs, provisioner, sessions, nil, logger, metrics)

	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(1<<20),
	)
	sso.NewHandlers(authenticator, sessions, configs, logger).RegisterRoutes(router)
	scim.NewGateway(configs, store, provisioner, logger, metrics).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := newHealthServer(cfg, metrics, sessions)

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		sessions.Stop()
		cancel()
		return closeStore()
	})

	var g errgroup.Group
	g.Go(func() error {
		logger.WithField("addr", server.Addr).Info("federation gateway listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health listener started")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown()
	})

	return g.Wait()
}

// buildStore selects the backing store and returns its close function
func buildStore(ctx context.Context, cfg *config.Config, logger *observability.Logger) (sso.Store, func() error, error) {
	switch cfg.Storage.Type {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Storage.MaxConns)
		db.SetConnMaxIdleTime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to reach database: %w", err)
		}
		if err := sso.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("postgres store ready")
		return sso.NewPostgresStore(db), db.Close, nil
	default:
		logger.Warn("using in-memory store; sessions and users do not survive restarts")
		return sso.NewMemoryStore(), func() error { return nil }, nil
	}
}

// newHealthServer serves liveness and metrics on a port separate from the
// public surface
func newHealthServer(cfg *config.Config, metrics *observability.Metrics, sessions *sso.SessionManager) *http.Server {
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]interface{}{
			"status":          "ok",
			"active_sessions": sessions.Count(),
		})
	})
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
