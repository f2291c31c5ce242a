package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levante-framework/levante-dashboard-sub000/internal/config"
	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "info", Format: "text"})
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)

	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, serverErrors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != StopSignal {
		t.Fatalf("expected reason=signal, got %q", reason)
	}
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(stop, serverErrors)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if reason != StopServerError {
		t.Fatalf("expected reason=server_error, got %q", reason)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown failed: %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cleanup to run once, ran %d times", got)
	}
}

func TestShutdown_DrainsEveryComponentInReverseOrder(t *testing.T) {
	app := &App{logger: testLogger()}
	var drained []string
	drain := func(name string, err error) drainFunc {
		return func(context.Context) error {
			drained = append(drained, name)
			return err
		}
	}
	app.cleanup.push(componentStoreClient, drain(componentStoreClient, nil))
	app.cleanup.push(componentDocumentCache, drain(componentDocumentCache, errors.New("connection reset")))
	app.cleanup.push(componentHTTPServer, drain(componentHTTPServer, nil))

	err := app.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document cache: connection reset")
	assert.Equal(t, []string{componentHTTPServer, componentDocumentCache, componentStoreClient}, drained)

	assert.Equal(t, err, app.Shutdown(context.Background()), "later calls report the first result")
	assert.Len(t, drained, 3)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	if _, err := app.Start(); err == nil {
		t.Fatalf("expected start to fail before init")
	}
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	app := &App{
		cfg:        &config.Config{},
		logger:     testLogger(),
		serverAddr: "127.0.0.1:0",
		srv: &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.NewServeMux(),
		},
		initialized: true,
	}
	app.cleanup.push(componentHTTPServer, func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})

	if _, err := app.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func testAppConfig(baseURL string) *config.Config {
	return &config.Config{
		DocStore: config.DocStoreConfig{
			ProjectID:               "demo",
			DatabaseID:              "(default)",
			BaseURL:                 baseURL,
			Credentials:             "none",
			BatchSize:               100,
			RequestTimeout:          time.Second,
			ConnectionRetryInterval: 10 * time.Millisecond,
		},
		Server: config.ServerConfig{
			Port: 18089,
			Auth: config.AuthConfig{
				Mode:                "none",
				AnonymousSuperAdmin: true,
				SuperAdminClaim:     "super_admin",
				AdminOrgsClaim:      "admin_orgs",
			},
			ReadTimeout:        time.Second,
			WriteTimeout:       time.Second,
			IdleTimeout:        time.Second,
			ShutdownTimeout:    time.Second,
			HealthCheckTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName:    "levante-dashboard",
			ServiceVersion: "test",
			Environment:    "test",
			Logging: config.LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	app, err := New(testAppConfig("http://127.0.0.1:1"), testLogger())
	require.NoError(t, err)

	err = app.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach document store")

	app.stateMu.Lock()
	initialized := app.initialized
	app.stateMu.Unlock()
	assert.False(t, initialized, "app should not be marked initialized after failed Init")
	assert.Nil(t, app.Handler())
}

func TestInitFailure_UnreachableCache(t *testing.T) {
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer store.Close()

	cfg := testAppConfig(store.URL)
	cfg.Cache = config.CacheConfig{Enabled: true, RedisAddr: "127.0.0.1:1", TTL: time.Minute}
	app, err := New(cfg, testLogger())
	require.NoError(t, err)

	err = app.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document cache")
}

func TestInit_ServesAPIAgainstStore(t *testing.T) {
	var calls int32
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/demo/databases/(default)/documents:runQuery", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"readTime":"2024-01-01T00:00:00Z"}]`))
	}))
	defer store.Close()

	app, err := New(testAppConfig(store.URL), testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	require.NoError(t, app.Init(context.Background()), "Init is idempotent")
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	assert.Equal(t, []string{componentStoreClient, componentHTTPServer}, app.cleanup.names())

	handler := app.Handler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orgs/districts", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{}, body["items"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestWaitForStore_RetriesUntilReachable(t *testing.T) {
	cfg := testAppConfig("")
	cfg.DocStore.ConnectionTimeout = time.Second
	cfg.DocStore.ConnectionRetryInterval = time.Millisecond

	attempts := 0
	err := waitForStore(context.Background(), cfg, testLogger(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWaitForStore_GivesUpAfterTimeout(t *testing.T) {
	cfg := testAppConfig("")
	cfg.DocStore.ConnectionTimeout = 20 * time.Millisecond
	cfg.DocStore.ConnectionRetryInterval = 5 * time.Millisecond

	err := waitForStore(context.Background(), cfg, testLogger(), func(context.Context) error {
		return errors.New("unavailable")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available after")
}

func TestWaitForStore_ZeroTimeoutProbesOnce(t *testing.T) {
	attempts := 0
	err := waitForStore(context.Background(), testAppConfig(""), testLogger(), func(context.Context) error {
		attempts++
		return errors.New("unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
