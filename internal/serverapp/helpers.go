package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/levante-framework/levante-dashboard-sub000/internal/api"
	"github.com/levante-framework/levante-dashboard-sub000/internal/config"
	"github.com/levante-framework/levante-dashboard-sub000/internal/dbexec"
	"github.com/levante-framework/levante-dashboard-sub000/internal/doccache"
	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
	"github.com/levante-framework/levante-dashboard-sub000/internal/middleware"
	"github.com/levante-framework/levante-dashboard-sub000/internal/observability"
)

func otlpExporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     otlpExporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized successfully")

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.StoreMetrics, *observability.QueryMetrics, *observability.SecurityMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	storeMetrics, queryMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	securityMetrics, err := observability.InitSecurityMetrics()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger.Info("security metrics initialized")

	return meterProvider, storeMetrics, queryMetrics, securityMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       otlpExporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

// buildExecutor assembles the authorized REST client and wraps it with
// store metrics.
func buildExecutor(ctx context.Context, cfg *config.Config, metrics *observability.StoreMetrics) (*dbexec.InstrumentedExecutor, error) {
	client, err := dbexec.NewHTTPClient(ctx, dbexec.ClientConfig{
		Credentials: cfg.DocStore.Credentials,
		Token:       cfg.DocStore.AccessToken,
		Timeout:     cfg.DocStore.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	rest, err := dbexec.NewRESTExecutor(dbexec.RESTConfig{
		BaseURL:    cfg.DocStore.BaseURL,
		ProjectID:  cfg.DocStore.ProjectID,
		DatabaseID: cfg.DocStore.DatabaseID,
		HTTPClient: client,
		Timeout:    cfg.DocStore.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	return dbexec.NewInstrumentedExecutor(rest, metrics), nil
}

// attachCache puts the Redis document cache in front of next when enabled.
// The returned client is nil when the cache is off.
func attachCache(ctx context.Context, cfg *config.Config, logger *logging.Logger, next dbexec.QueryExecutor, metrics *observability.StoreMetrics) (*redis.Client, dbexec.QueryExecutor, error) {
	if !cfg.Cache.Enabled {
		return nil, next, nil
	}

	client, err := doccache.NewClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("document cache enabled",
		slog.String("redis_addr", cfg.Cache.RedisAddr),
		slog.Duration("ttl", cfg.Cache.TTL),
		slog.Any("collections", cfg.Cache.Collections),
	)

	cached := doccache.New(next, client, doccache.Config{
		TTL:         cfg.Cache.TTL,
		Prefix:      cfg.Cache.KeyPrefix,
		Collections: cfg.Cache.Collections,
	}, metrics)
	return client, cached, nil
}

// waitForStore probes the store until it answers or connection_timeout
// elapses. A zero timeout probes once.
func waitForStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, ping func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.DocStore.ConnectionTimeout
	interval := cfg.DocStore.ConnectionRetryInterval

	if timeout == 0 {
		return ping(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := ping(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("document store reachable", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("document store not available after %v: %w", timeout, err)
		}

		logger.Warn("document store not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, 30*time.Second)
	}
}

func authConfig(cfg *config.Config) middleware.AuthConfig {
	a := cfg.Server.Auth
	return middleware.AuthConfig{
		Mode:                a.Mode,
		IssuerURL:           a.OIDCIssuerURL,
		Audience:            a.OIDCAudience,
		ClockSkew:           a.OIDCClockSkew,
		SkipTLSVerify:       a.OIDCSkipTLSVerify,
		CAFile:              a.OIDCCAFile,
		HS256Secret:         []byte(a.HS256Secret),
		SuperAdminClaim:     a.SuperAdminClaim,
		AdminOrgsClaim:      a.AdminOrgsClaim,
		AnonymousSuperAdmin: a.AnonymousSuperAdmin,
	}
}

func buildRouter(cfg *config.Config, logger *logging.Logger, backend api.Backend, securityMetrics *observability.SecurityMetrics, meterProvider *observability.MeterProvider) (http.Handler, error) {
	auth, err := middleware.AuthMiddleware(authConfig(cfg), logger, securityMetrics)
	if err != nil {
		return nil, err
	}
	logger.Info("authentication configured", slog.String("mode", cfg.Server.Auth.Mode))
	if cfg.Server.Auth.Mode == middleware.AuthModeNone {
		logger.Warn("API requests are not authenticated",
			slog.Bool("anonymous_super_admin", cfg.Server.Auth.AnonymousSuperAdmin))
	}

	routerCfg := api.Config{
		Backend:       backend,
		Middleware:    []func(http.Handler) http.Handler{middleware.LoggingMiddleware(logger)},
		Auth:          auth,
		HealthTimeout: cfg.Server.HealthCheckTimeout,
	}
	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		routerCfg.Metrics = promhttp.Handler()
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return api.NewRouter(routerCfg), nil
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
		})(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps root span names low-cardinality; chi's route
// pattern is not known yet when the outer span starts.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/health", "/metrics":
		return rawPath
	}
	for _, prefix := range []string{"/api/v1/orgs/", "/api/v1/administrations", "/api/v1/users/"} {
		if strings.HasPrefix(rawPath, prefix) {
			return strings.TrimSuffix(prefix, "/") + "/*"
		}
	}
	return "/*"
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
