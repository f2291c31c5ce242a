package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// StopReason says why WaitForStop returned.
type StopReason string

const (
	StopSignal      StopReason = "signal"
	StopServerError StopReason = "server_error"
)

// Start begins serving the dashboard API in the background. It requires a
// completed Init; calling it again returns the same error channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if !a.started {
		a.serverErrors = a.serve()
		a.started = true
	}
	return a.serverErrors, nil
}

func (a *App) serve() chan error {
	errs := make(chan error, 1)
	attrs := a.startAttrs()
	go func() {
		a.logger.Info("dashboard server listening", attrs...)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	return errs
}

func (a *App) startAttrs() []any {
	cfg := a.cfg
	attrs := []any{
		slog.String("address", a.serverAddr),
		slog.String("api_prefix", "/api/v1"),
		slog.String("auth_mode", cfg.Server.Auth.Mode),
		slog.String("docstore_project", cfg.DocStore.ProjectID),
		slog.String("docstore_database", cfg.DocStore.DatabaseID),
		slog.Int("batch_size", cfg.DocStore.BatchSize),
		slog.Bool("document_cache", a.redis != nil),
	}
	if cfg.Observability.MetricsEnabled {
		attrs = append(attrs, slog.String("metrics_endpoint", "/metrics"))
	}
	if cfg.Server.RateLimitEnabled {
		attrs = append(attrs,
			slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
			slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
		)
	}
	return attrs
}

// WaitForStop blocks until a signal arrives on stop or the server reports an
// error. A nil serverErrors falls back to the channel returned by Start; a
// nil channel never fires.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (StopReason, error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	select {
	case err := <-serverErrors:
		if err == nil {
			return StopServerError, fmt.Errorf("server stopped unexpectedly")
		}
		return StopServerError, fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopSignal, nil
	}
}
