package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/frozlabs/todovault/internal/config"
	apierrors "github.com/frozlabs/todovault/internal/errors"
	"github.com/frozlabs/todovault/internal/handler"
	"github.com/frozlabs/todovault/internal/health"
	"github.com/frozlabs/todovault/internal/identity"
	"github.com/frozlabs/todovault/internal/metrics"
	"github.com/frozlabs/todovault/internal/middleware"
	"github.com/frozlabs/todovault/internal/pool"
	"github.com/frozlabs/todovault/internal/server"
	"github.com/frozlabs/todovault/internal/service"
	"github.com/frozlabs/todovault/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting todovault service")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.Int("database_port", cfg.Database.Port),
		zap.String("registry_database", cfg.Database.RegistryDatabase))

	m := metrics.NewMetrics()

	// The registry connection is the process's own startup connectivity
	// check: if the engine is unreachable, fail loudly here instead of on
	// every request.
	registry, err := store.NewPostgresAccountStore(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.RegistryDatabase,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to connect to tenant registry", zap.Error(err))
	}
	if err := registry.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Failed to ensure registry schema", zap.Error(err))
	}
	logger.Info("Tenant registry initialized")

	// The provisioner shares the registry pool for catalog probes and DDL.
	provisioner := pool.NewPostgresProvisioner(registry.GetPool(), cfg.Database, cfg.Pools, logger)
	cache := pool.NewCache(logger)
	reaper := pool.NewReaper(cache, cfg.Pools.ReapInterval, cfg.Pools.IdleTimeout, m, logger)
	reaper.Start()
	logger.Info("Pool cache and reaper initialized")

	creds := identity.NewCredentials(cfg.Session)
	resolver := identity.NewResolver(creds, logger)
	errorHandler := apierrors.NewHandler(logger)

	accountService := service.NewAccountService(registry, logger)
	sessionService := service.NewSessionService(cache, provisioner, m, logger)
	poolService := service.NewPoolService(registry, cache, provisioner, m, logger)

	todoStore := store.NewTodoStore(logger)
	handlers := handler.NewHandlers(accountService, sessionService, todoStore, creds, resolver, errorHandler, logger)
	attacher := middleware.NewTenantAttacher(resolver, poolService, creds, errorHandler, cfg.Pools.ProvisionTimeout, logger)
	healthCheck := health.NewHealthCheck(registry, logger)

	srv := server.NewServer(cfg, handlers, attacher, healthCheck, errorHandler, m, logger)
	srv.SetupRoutes()

	var metricsServer *http.Server
	g, _ := errgroup.WithContext(context.Background())
	g.Go(srv.Start)

	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
		g.Go(func() error {
			logger.Info("Starting metrics server", zap.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- g.Wait()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}

	reaper.Stop()
	cache.CloseAll()
	registry.Close()

	logger.Info("todovault service stopped")
}
