package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.DocStore.validate(result)
	c.Cache.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	return result
}

var validCredentialModes = map[string]bool{"google": true, "token": true, "none": true}

func (d *DocStoreConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.ProjectID) == "" {
		result.addError("docstore.project_id", "project ID is required", "set docstore.project_id or LEVANTE_DOCSTORE_PROJECT_ID")
	}
	if strings.TrimSpace(d.DatabaseID) == "" {
		result.addError("docstore.database_id", "database ID cannot be empty", "use (default) for the default database")
	}

	if d.BaseURL != "" {
		parsed, err := url.Parse(d.BaseURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			result.addError("docstore.base_url", fmt.Sprintf("invalid base URL %q", d.BaseURL), "use scheme://host[:port]")
		} else if parsed.Scheme == "http" && d.Credentials != "none" {
			result.addWarning("docstore.base_url", "credentials will be sent over plain http", "use https or credentials=none for the emulator")
		}
	}

	if !validCredentialModes[d.Credentials] {
		result.addError("docstore.credentials", fmt.Sprintf("invalid credentials mode %q", d.Credentials), "valid values are: google, token, none")
	}
	if d.Credentials == "token" && strings.TrimSpace(d.AccessToken) == "" {
		result.addError("docstore.access_token", "access token is required when credentials is token",
			"set access_token, access_token_file or access_token_prompt")
	}

	if d.BatchSize <= 0 {
		result.addError("docstore.batch_size", "batch_size must be greater than 0", "")
	}
	if d.RequestTimeout < 0 {
		result.addError("docstore.request_timeout", "request_timeout cannot be negative", "")
	}
	if d.ConnectionTimeout < 0 {
		result.addError("docstore.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval <= 0 {
		result.addError("docstore.connection_retry_interval", "connection_retry_interval must be greater than 0 when connection_timeout is set", "")
	}
}

func (c *CacheConfig) validate(result *ValidationResult) {
	if !c.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
		result.addError("cache.redis_addr", fmt.Sprintf("invalid Redis address %q", c.RedisAddr), "use host:port")
	}
	if c.RedisDB < 0 {
		result.addError("cache.redis_db", "redis_db cannot be negative", "")
	}
	if c.TTL <= 0 {
		result.addError("cache.ttl", "ttl must be greater than 0 when the cache is enabled", "")
	}
	for _, name := range c.Collections {
		if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
			result.addError("cache.collections", fmt.Sprintf("invalid collection name %q", name), "use top-level collection IDs such as schools")
		}
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	}
	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.addError("server.cors_allowed_origins", "CORS enabled but no allowed origins configured", "set cors_allowed_origins or disable CORS")
		}
		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCredentials {
			result.addError("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.addWarning("server.cors_allowed_origins", "CORS wildcard origin enabled", "use specific origins in production for better security")
		}
	}

	s.Auth.validate(result)
}

func (a *AuthConfig) validate(result *ValidationResult) {
	switch a.Mode {
	case "none":
		if a.AnonymousSuperAdmin {
			result.addWarning("server.auth.anonymous_super_admin", "every caller is treated as a super admin",
				"use only for local development against the emulator")
		} else {
			result.addWarning("server.auth.mode", "authentication is disabled and callers have no permissions",
				"set server.auth.mode to oidc or hs256")
		}
	case "oidc":
		if a.OIDCIssuerURL == "" {
			result.addError("server.auth.oidc_issuer_url", "issuer URL is required when auth mode is oidc", "")
		} else if !strings.HasPrefix(a.OIDCIssuerURL, "https://") {
			result.addError("server.auth.oidc_issuer_url", "issuer URL must use https", "")
		}
		if a.OIDCAudience == "" {
			result.addError("server.auth.oidc_audience", "audience is required when auth mode is oidc", "")
		}
		if a.OIDCSkipTLSVerify {
			result.addWarning("server.auth.oidc_skip_tls_verify", "TLS verification for the OIDC provider is disabled",
				"use oidc_ca_file to trust a private CA instead")
		}
	case "hs256":
		if strings.TrimSpace(a.HS256Secret) == "" {
			result.addError("server.auth.hs256_secret", "secret is required when auth mode is hs256", "set hs256_secret or hs256_secret_file")
		} else if len(a.HS256Secret) < 32 {
			result.addWarning("server.auth.hs256_secret", "secret is shorter than 32 bytes", "")
		}
	default:
		result.addError("server.auth.mode", fmt.Sprintf("invalid auth mode %q", a.Mode), "valid values are: none, oidc, hs256")
	}

	if a.AnonymousSuperAdmin && a.Mode != "none" {
		result.addError("server.auth.anonymous_super_admin", "anonymous_super_admin requires auth mode none", "")
	}
	if a.OIDCClockSkew < 0 {
		result.addError("server.auth.oidc_clock_skew", "oidc_clock_skew cannot be negative", "")
	}
	if strings.TrimSpace(a.SuperAdminClaim) == "" {
		result.addError("server.auth.super_admin_claim", "super_admin_claim cannot be empty", "")
	}
	if strings.TrimSpace(a.AdminOrgsClaim) == "" {
		result.addError("server.auth.admin_orgs_claim", "admin_orgs_claim cannot be empty", "")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}

	if o.RetryMaxAttempts < 0 {
		result.addError(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
