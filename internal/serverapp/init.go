package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/levante-framework/levante-dashboard-sub000/internal/resolver"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push(componentLoggerProvider, func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, storeMetrics, queryMetrics, securityMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push(componentMeterProvider, func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push(componentTracerProvider, func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to document store",
		slog.String("project_id", a.cfg.DocStore.ProjectID),
		slog.String("database_id", a.cfg.DocStore.DatabaseID),
		slog.String("base_url", a.cfg.DocStore.BaseURL),
		slog.String("credentials", a.cfg.DocStore.Credentials),
	)

	storeClient, err := buildExecutor(ctx, a.cfg, storeMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize document store client: %w", err)
	}
	cleanup.push(componentStoreClient, func(context.Context) error {
		return storeClient.Close()
	})

	redisClient, executor, err := attachCache(ctx, a.cfg, a.logger, storeClient, storeMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize document cache: %w", err)
	}
	if redisClient != nil {
		cleanup.push(componentDocumentCache, func(context.Context) error {
			return redisClient.Close()
		})
	}

	res, err := resolver.New(resolver.Config{
		Executor:  executor,
		ChunkSize: a.cfg.DocStore.BatchSize,
		Metrics:   queryMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize resolver: %w", err)
	}

	if err := waitForStore(ctx, a.cfg, a.logger, res.Ping); err != nil {
		return fmt.Errorf("failed to reach document store: %w", err)
	}

	router, err := buildRouter(a.cfg, a.logger, res, securityMetrics, meterProvider)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP router: %w", err)
	}
	handler := wrapHTTPHandler(a.cfg, a.logger, router)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push(componentHTTPServer, func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.storeMetrics = storeMetrics
	a.queryMetrics = queryMetrics
	a.securityMetrics = securityMetrics
	a.tracerProvider = tracerProvider
	a.executor = executor
	a.redis = redisClient
	a.resolver = res
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
