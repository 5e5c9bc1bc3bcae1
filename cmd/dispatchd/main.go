// Command dispatchd runs the Task Dispatch and Execution Core: the
// Dispatcher and Executor tick loops plus the HTTP surface spec §6 exposes.
// The Callback Reconciler and Dependency Promoter have no tick loop here.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/developer-mesh/dispatch-core/pkg/api"
	"github.com/developer-mesh/dispatch-core/pkg/cache"
	"github.com/developer-mesh/dispatch-core/pkg/circuitbreaker"
	"github.com/developer-mesh/dispatch-core/pkg/config"
	"github.com/developer-mesh/dispatch-core/pkg/database"
	"github.com/developer-mesh/dispatch-core/pkg/dispatcher"
	"github.com/developer-mesh/dispatch-core/pkg/encryption"
	"github.com/developer-mesh/dispatch-core/pkg/executor"
	"github.com/developer-mesh/dispatch-core/pkg/executorclient"
	"github.com/developer-mesh/dispatch-core/pkg/keystore"
	dispatchmetrics "github.com/developer-mesh/dispatch-core/pkg/metrics"
	customMiddleware "github.com/developer-mesh/dispatch-core/pkg/middleware"
	"github.com/developer-mesh/dispatch-core/pkg/observability"
	"github.com/developer-mesh/dispatch-core/pkg/promoter"
	"github.com/developer-mesh/dispatch-core/pkg/reconciler"
	"github.com/developer-mesh/dispatch-core/pkg/repository/postgres"
	"github.com/developer-mesh/dispatch-core/pkg/resilience"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := validateConfiguration(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := observability.NewLogger("dispatchd")
	obsMetrics := observability.NewMetricsClient()
	legacyMetrics := dispatchmetrics.NewClient(cfg.Metrics)
	defer legacyMetrics.Close()

	db, err := database.NewDatabase(ctx, databaseConfig(cfg.Database))
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("database connection is not alive: %v", err)
	}

	cacheClient, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}
	defer cacheClient.Close()

	keys := keystore.New(cacheClient)
	enc := encryption.NewCollaborator(cfg.Encryption.WritePassphrase, keys)

	base := postgres.NewBaseRepository(db.DB(), db.DB(), cacheClient, logger, traceAdapter, obsMetrics, postgres.BaseRepositoryConfig{
		CircuitBreaker: resilience.NewCircuitBreaker("postgres", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			TimeoutThreshold: 10 * time.Second,
		}, logger, obsMetrics),
	})

	tasks := postgres.NewTaskRepository(base)
	ideaTasks := postgres.NewIdeaTaskRepository(base)
	ideaExecs := postgres.NewIdeaExecutionRepository(base)
	ideas := postgres.NewIdeaRepository(base)
	queue := postgres.NewQueueRepository(base)
	logs := postgres.NewDispatchLogRepository(base)

	breaker := circuitbreaker.New(logs, cfg.Dispatcher.CircuitBreakerTrip)
	disp := dispatcher.New(tasks, queue, logs, breaker, enc, logger, cfg.Dispatcher.BatchSize)
	promo := promoter.New(tasks, disp, logger)
	recon := reconciler.New(db, tasks, ideaTasks, ideaExecs, ideas, queue, logs, promo, logger)

	execClient := executorclient.New(cfg.Executor.ServiceURL, cfg.Executor.ServiceBearerToken, cfg.Executor.RequestTimeout)
	execBreaker := resilience.NewCircuitBreaker("executor-service", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		TimeoutThreshold: cfg.Executor.RequestTimeout,
	}, logger, obsMetrics)
	execBulkhead := resilience.NewBulkhead("executor-service", resilience.BulkheadConfig{MaxConcurrentCalls: 8}, logger, obsMetrics)
	exec := executor.New(queue, logs, execClient, recon, execBreaker, execBulkhead, logger, cfg.Executor.ClaimTimeout, cfg.Executor.MaxRetries,
		executor.WithRateLimiter(resilience.RateLimiterConfig{Limit: 60, Period: time.Minute, BurstFactor: 2}))

	tenantID, err := uuid.Parse(cfg.Tenant.PrimaryTenantID)
	if err != nil {
		log.Fatalf("invalid tenant.primary_tenant_id: %v", err)
	}
	userID, err := uuid.Parse(cfg.Tenant.PrimaryUserID)
	if err != nil {
		log.Fatalf("invalid tenant.primary_user_id: %v", err)
	}

	runTickLoop(ctx, "dispatcher", cfg.Dispatcher.TickInterval, logger, func(ctx context.Context) error {
		_, err := disp.Run(ctx, tenantID, nil)
		return err
	})
	runTickLoop(ctx, "executor", cfg.Executor.TickInterval, logger, func(ctx context.Context) error {
		_, err := exec.Run(ctx)
		return err
	})

	rateLimiter := customMiddleware.NewRateLimiter(customMiddleware.RateLimitConfig{
		GlobalRPS:       int(cfg.API.RateLimitRPS),
		GlobalBurst:     cfg.API.RateLimitBurst,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          time.Hour,
	}, logger, obsMetrics)

	readiness := database.NewReadinessChecker(db.DB())
	if err := readiness.WaitForTables(ctx); err != nil {
		log.Fatalf("database schema not ready: %v", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(rateLimiter.GlobalLimit())

	server := api.New(disp, recon)
	server.RegisterRoutes(router, cfg.API.BearerToken, cfg.Encryption.WritePassphrase, tenantID, userID)

	httpServer := &http.Server{
		Addr:         cfg.API.ListenAddress,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	go func() {
		logger.Info("starting dispatchd HTTP server", map[string]interface{}{"address": cfg.API.ListenAddress})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal", nil)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("dispatchd stopped gracefully", nil)
}

// traceAdapter bridges observability.StartSpan's two-argument signature to
// observability.StartSpanFunc, which also accepts span attributes.
func traceAdapter(ctx context.Context, name string, _ ...attribute.KeyValue) (context.Context, observability.Span) {
	return observability.StartSpan(ctx, name)
}

// runTickLoop runs fn every interval in its own goroutine until ctx is
// cancelled, logging (not panicking on) individual tick failures.
func runTickLoop(ctx context.Context, name string, interval time.Duration, logger observability.Logger, fn func(context.Context) error) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					logger.Error(name+" tick failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}()
}

func databaseConfig(cfg config.DatabaseConfig) database.Config {
	return database.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		Host:            cfg.Host,
		Port:            cfg.Port,
		Database:        cfg.Database,
		Username:        cfg.Username,
		Password:        cfg.Password,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}

func validateConfiguration(cfg *config.Config) error {
	if cfg.Database.DSN == "" && (cfg.Database.Host == "" || cfg.Database.Port == 0 || cfg.Database.Database == "") {
		return fmt.Errorf("invalid database configuration: dsn or host/port/database must be provided")
	}
	if cfg.Tenant.PrimaryTenantID == "" || cfg.Tenant.PrimaryUserID == "" {
		return fmt.Errorf("tenant.primary_tenant_id and tenant.primary_user_id are required")
	}
	if cfg.Encryption.WritePassphrase == "" {
		return fmt.Errorf("encryption.write_passphrase is required")
	}
	if cfg.API.BearerToken == "" {
		return fmt.Errorf("api.bearer_token is required")
	}
	return nil
}
