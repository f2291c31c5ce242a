package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	validConfig := func() *Config {
		return &Config{
			DocStore: DocStoreConfig{
				ProjectID:      "demo",
				DatabaseID:     "(default)",
				BaseURL:        "https://firestore.googleapis.com",
				Credentials:    "google",
				BatchSize:      100,
				RequestTimeout: 30 * time.Second,
			},
			Cache: CacheConfig{
				RedisAddr: "localhost:6379",
				TTL:       5 * time.Minute,
			},
			Server: ServerConfig{
				Port: 8080,
				Auth: AuthConfig{
					Mode:            "oidc",
					OIDCIssuerURL:   "https://issuer.example.com",
					OIDCAudience:    "levante-dashboard",
					SuperAdminClaim: "super_admin",
					AdminOrgsClaim:  "admin_orgs",
				},
			},
			Observability: ObservabilityConfig{
				TraceSampleRatio: 1,
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
				OTLP: OTLPConfig{
					Protocol:    "grpc",
					Compression: "gzip",
				},
			},
		}
	}

	t.Run("valid config passes validation", func(t *testing.T) {
		result := validConfig().Validate()
		assert.False(t, result.HasErrors())
		assert.Empty(t, result.Errors)
		assert.Empty(t, result.Warnings)
	})

	errorCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing project", func(c *Config) { c.DocStore.ProjectID = " " }, "docstore.project_id"},
		{"empty database", func(c *Config) { c.DocStore.DatabaseID = "" }, "docstore.database_id"},
		{"bad base url", func(c *Config) { c.DocStore.BaseURL = "firestore.googleapis.com" }, "docstore.base_url"},
		{"bad credentials", func(c *Config) { c.DocStore.Credentials = "apikey" }, "docstore.credentials"},
		{"token without token", func(c *Config) { c.DocStore.Credentials = "token" }, "docstore.access_token"},
		{"zero batch size", func(c *Config) { c.DocStore.BatchSize = 0 }, "docstore.batch_size"},
		{"retry interval", func(c *Config) { c.DocStore.ConnectionTimeout = time.Minute }, "docstore.connection_retry_interval"},
		{"cache bad addr", func(c *Config) { c.Cache.Enabled = true; c.Cache.RedisAddr = "redis" }, "cache.redis_addr"},
		{"cache zero ttl", func(c *Config) { c.Cache.Enabled = true; c.Cache.TTL = 0 }, "cache.ttl"},
		{"cache nested collection", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.Collections = []string{"users/u1/runs"}
		}, "cache.collections"},
		{"invalid server port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"rate limit without rps", func(c *Config) { c.Server.RateLimitEnabled = true; c.Server.RateLimitBurst = 5 }, "server.rate_limit_rps"},
		{"cors without origins", func(c *Config) { c.Server.CORSEnabled = true }, "server.cors_allowed_origins"},
		{"cors wildcard credentials", func(c *Config) {
			c.Server.CORSEnabled = true
			c.Server.CORSAllowedOrigins = []string{"*"}
			c.Server.CORSAllowCredentials = true
		}, "server.cors_allowed_origins"},
		{"unknown auth mode", func(c *Config) { c.Server.Auth.Mode = "basic" }, "server.auth.mode"},
		{"oidc without issuer", func(c *Config) { c.Server.Auth.OIDCIssuerURL = "" }, "server.auth.oidc_issuer_url"},
		{"oidc http issuer", func(c *Config) { c.Server.Auth.OIDCIssuerURL = "http://issuer.example.com" }, "server.auth.oidc_issuer_url"},
		{"oidc without audience", func(c *Config) { c.Server.Auth.OIDCAudience = "" }, "server.auth.oidc_audience"},
		{"hs256 without secret", func(c *Config) { c.Server.Auth.Mode = "hs256" }, "server.auth.hs256_secret"},
		{"anonymous super admin outside none", func(c *Config) { c.Server.Auth.AnonymousSuperAdmin = true }, "server.auth.anonymous_super_admin"},
		{"empty admin orgs claim", func(c *Config) { c.Server.Auth.AdminOrgsClaim = "" }, "server.auth.admin_orgs_claim"},
		{"invalid log level", func(c *Config) { c.Observability.Logging.Level = "invalid" }, "observability.logging.level"},
		{"invalid log format", func(c *Config) { c.Observability.Logging.Format = "xml" }, "observability.logging.format"},
		{"invalid sample ratio", func(c *Config) { c.Observability.TraceSampleRatio = 2 }, "observability.trace_sample_ratio"},
		{"invalid OTLP protocol", func(c *Config) { c.Observability.OTLP.Protocol = "http" }, "observability.otlp.protocol"},
		{"invalid http endpoint", func(c *Config) {
			c.Observability.OTLP.Protocol = "http/protobuf"
			c.Observability.OTLP.Endpoint = "collector"
		}, "observability.otlp.endpoint"},
		{"invalid traces compression", func(c *Config) {
			c.Observability.Traces = &OTLPConfig{Compression: "zstd"}
		}, "observability.traces.compression"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			result := cfg.Validate()
			assert.True(t, result.HasErrors())
			assert.Contains(t, result.Error(), tc.field)
		})
	}

	t.Run("disabled cache is not validated", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache.RedisAddr = ""
		cfg.Cache.TTL = 0
		assert.False(t, cfg.Validate().HasErrors())
	})

	t.Run("emulator setup warns only", func(t *testing.T) {
		cfg := validConfig()
		cfg.DocStore.BaseURL = "http://localhost:8080"
		cfg.DocStore.Credentials = "none"
		cfg.Server.Auth = AuthConfig{
			Mode:                "none",
			AnonymousSuperAdmin: true,
			SuperAdminClaim:     "super_admin",
			AdminOrgsClaim:      "admin_orgs",
		}
		result := cfg.Validate()
		assert.False(t, result.HasErrors(), result.Error())
		assert.Len(t, result.Warnings, 1)
		assert.Equal(t, "server.auth.anonymous_super_admin", result.Warnings[0].Field)
	})

	t.Run("plain http with credentials warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.DocStore.BaseURL = "http://proxy.internal:8080"
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
		assert.Equal(t, "docstore.base_url", result.Warnings[0].Field)
	})

	t.Run("multiple errors are joined", func(t *testing.T) {
		cfg := validConfig()
		cfg.DocStore.ProjectID = ""
		cfg.Server.Port = 0
		cfg.Observability.Logging.Level = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Len(t, result.Errors, 3)
	})
}

func TestMergeOTLPConfigs(t *testing.T) {
	base := OTLPConfig{
		Endpoint:    "collector:4317",
		Protocol:    "grpc",
		Headers:     map[string]string{"x-tenant": "levante", "x-env": "dev"},
		Timeout:     10 * time.Second,
		Compression: "gzip",
	}
	obs := ObservabilityConfig{OTLP: base}
	assert.Equal(t, base, obs.GetTracesConfig())

	obs.Traces = &OTLPConfig{
		Endpoint: "traces:4318",
		Protocol: "http/protobuf",
		Insecure: true,
		Headers:  map[string]string{"x-env": "prod"},
	}
	got := obs.GetTracesConfig()
	assert.Equal(t, "traces:4318", got.Endpoint)
	assert.Equal(t, "http/protobuf", got.Protocol)
	assert.True(t, got.Insecure)
	assert.Equal(t, map[string]string{"x-tenant": "levante", "x-env": "prod"}, got.Headers)
	assert.Equal(t, 10*time.Second, got.Timeout)
	assert.Equal(t, "gzip", got.Compression)
	assert.Equal(t, base, obs.GetLogsConfig())
}

func TestValidationError_Error(t *testing.T) {
	t.Run("with hint", func(t *testing.T) {
		err := ValidationError{
			Field:   "test.field",
			Message: "test message",
			Hint:    "try this",
		}
		assert.Equal(t, "test.field: test message (hint: try this)", err.Error())
	})

	t.Run("without hint", func(t *testing.T) {
		err := ValidationError{
			Field:   "test.field",
			Message: "test message",
		}
		assert.Equal(t, "test.field: test message", err.Error())
	})
}
