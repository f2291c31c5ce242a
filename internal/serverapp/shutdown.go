package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
)

// Components drained on shutdown. The HTTP server is registered last so it
// stops taking requests before the cache and store client go away.
const (
	componentLoggerProvider = "logger provider"
	componentMeterProvider  = "meter provider"
	componentTracerProvider = "tracer provider"
	componentStoreClient    = "document store client"
	componentDocumentCache  = "document cache"
	componentHTTPServer     = "http server"
)

type drainFunc func(context.Context) error

type component struct {
	name  string
	drain drainFunc
}

// cleanupStack drains components in reverse registration order.
type cleanupStack struct {
	components []component
}

func (s *cleanupStack) push(name string, fn drainFunc) {
	s.components = append(s.components, component{name: name, drain: fn})
}

func (s *cleanupStack) names() []string {
	out := make([]string, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c.name)
	}
	return out
}

// run drains every component even when an earlier one fails and returns the
// failures joined.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.components) - 1; i >= 0; i-- {
		c := s.components[i]
		started := time.Now()
		err := c.drain(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
		if logger == nil {
			continue
		}
		if err != nil {
			logger.Warn("component drain failed",
				slog.String("component", c.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Debug("component drained",
			slog.String("component", c.name),
			slog.Duration("duration", time.Since(started)),
		)
	}
	return errors.Join(errs...)
}

// Shutdown stops the HTTP server, then releases the document cache, the
// store client's idle connections and the telemetry providers. Later calls
// return the result of the first.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		if a.logger != nil {
			a.logger.Info("shutting down dashboard server", slog.Any("components", cleanup.names()))
		}
		a.shutdownErr = cleanup.run(ctx, a.logger)
	})

	return a.shutdownErr
}
