package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/observability"
)

// Auth modes.
const (
	AuthModeNone  = "none"
	AuthModeOIDC  = "oidc"
	AuthModeHS256 = "hs256"
)

const (
	DefaultSuperAdminClaim = "super_admin"
	DefaultAdminOrgsClaim  = "admin_orgs"
)

// AuthConfig controls bearer token validation and how claims map to permissions.
type AuthConfig struct {
	Mode string

	IssuerURL     string
	Audience      string
	ClockSkew     time.Duration
	SkipTLSVerify bool
	CAFile        string

	HS256Secret []byte

	SuperAdminClaim string
	AdminOrgsClaim  string

	// AnonymousSuperAdmin grants super admin to every request in mode none.
	AnonymousSuperAdmin bool
}

type authContextKey struct{}

// AuthContext carries validated JWT claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]interface{}
}

// WithAuthContext attaches auth to ctx.
func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return AuthContext{}, false
	}
	auth, ok := value.(AuthContext)
	return auth, ok
}

// tokenVerifier validates a raw bearer token and returns its claims.
type tokenVerifier interface {
	Verify(ctx context.Context, token string) (map[string]interface{}, error)
}

// AuthMiddleware validates bearer tokens and attaches model.Permissions
// derived from the configured claims. Pass nil metrics to disable security metrics.
func AuthMiddleware(cfg AuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	if cfg.SuperAdminClaim == "" {
		cfg.SuperAdminClaim = DefaultSuperAdminClaim
	}
	if cfg.AdminOrgsClaim == "" {
		cfg.AdminOrgsClaim = DefaultAdminOrgsClaim
	}

	var (
		verifier tokenVerifier
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", AuthModeNone:
		perms := model.Permissions{SuperAdmin: cfg.AnonymousSuperAdmin, Subject: "anonymous"}
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(model.WithPermissions(r.Context(), perms)))
			})
		}, nil
	case AuthModeOIDC:
		verifier, err = newOIDCVerifier(cfg, logger)
	case AuthModeHS256:
		verifier, err = newHS256Verifier(cfg)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return bearerAuth(cfg, verifier, metrics), nil
}

func bearerAuth(cfg AuthConfig, verifier tokenVerifier, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.URL.Path
			reqLogger := logging.FromContext(r.Context())
			metrics.RecordAuthAttempt(r.Context(), endpoint)

			tokenString := bearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				metrics.RecordAuthFailure(r.Context(), endpoint, "missing_token")
				metrics.RecordUnauthorizedAttempt(r.Context(), endpoint, "missing_token")
				reqLogger.Warn("authentication failed: missing bearer token",
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				metrics.RecordAuthFailure(r.Context(), endpoint, "token_verification_failed")
				metrics.RecordTokenValidationError(r.Context(), "verification_failed")
				metrics.RecordUnauthorizedAttempt(r.Context(), endpoint, "invalid_token")
				reqLogger.Warn("token validation failed",
					slog.String("error", err.Error()),
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			if err := validateTimeClaims(claims, cfg.ClockSkew); err != nil {
				metrics.RecordAuthFailure(r.Context(), endpoint, "time_validation_failed")
				metrics.RecordTokenValidationError(r.Context(), "time_validation_failed")
				reqLogger.Warn("token time validation failed",
					slog.String("error", err.Error()),
					slog.String("endpoint", endpoint),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			subject, _ := claims["sub"].(string)
			issuer, _ := claims["iss"].(string)
			aud := extractAudience(claims)
			perms := PermissionsFromClaims(claims, cfg.SuperAdminClaim, cfg.AdminOrgsClaim)
			perms.Subject = subject

			metrics.RecordAuthSuccess(r.Context(), endpoint, issuer)
			if !perms.SuperAdmin && perms.AdminOrgs.Empty() {
				metrics.RecordEmptyGrants(r.Context(), endpoint)
			}
			reqLogger.Debug("authentication successful",
				slog.String("subject", subject),
				slog.Bool("super_admin", perms.SuperAdmin),
				slog.String("endpoint", endpoint),
			)

			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.Bool("auth.authenticated", true),
					attribute.Bool("auth.super_admin", perms.SuperAdmin),
				)
				if len(aud) > 0 {
					span.SetAttributes(attribute.StringSlice("auth.audience", aud))
				}
			}

			ctx := WithAuthContext(r.Context(), AuthContext{
				Subject:  subject,
				Issuer:   issuer,
				Audience: aud,
				Claims:   claims,
			})
			ctx = model.WithPermissions(ctx, perms)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PermissionsFromClaims reads the super admin flag and the admin org grants
// from token claims. The grants claim may be an object or a JSON string.
func PermissionsFromClaims(claims map[string]interface{}, superAdminClaim, adminOrgsClaim string) model.Permissions {
	var perms model.Permissions
	switch v := claims[superAdminClaim].(type) {
	case bool:
		perms.SuperAdmin = v
	case string:
		perms.SuperAdmin, _ = strconv.ParseBool(v)
	}

	switch v := claims[adminOrgsClaim].(type) {
	case map[string]interface{}:
		perms.AdminOrgs = model.AdminOrgsFromMap(v)
	case string:
		var raw map[string]interface{}
		if json.Unmarshal([]byte(v), &raw) == nil {
			perms.AdminOrgs = model.AdminOrgsFromMap(raw)
		}
	}
	return perms
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func newOIDCVerifier(cfg AuthConfig, logger *logging.Logger) (*oidcVerifier, error) {
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	if logger != nil && cfg.SkipTLSVerify {
		logger.Warn("oidc tls verification is disabled; enable only for local development",
			"issuer", cfg.IssuerURL,
		)
	}

	httpClient, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	return &oidcVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: cfg.Audience})}, nil
}

func (v *oidcVerifier) Verify(ctx context.Context, token string) (map[string]interface{}, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	claims := map[string]interface{}{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}
	return claims, nil
}

func newOIDCHTTPClient(cfg AuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("oidc ca file %s contains no certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   10 * time.Second,
	}, nil
}

type hs256Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func newHS256Verifier(cfg AuthConfig) (*hs256Verifier, error) {
	if len(cfg.HS256Secret) == 0 {
		return nil, errors.New("hs256 auth enabled but no secret configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.IssuerURL != "" {
		opts = append(opts, jwt.WithIssuer(cfg.IssuerURL))
	}
	return &hs256Verifier{secret: cfg.HS256Secret, parser: jwt.NewParser(opts...)}, nil
}

func (v *hs256Verifier) Verify(_ context.Context, token string) (map[string]interface{}, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(value string) string {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, message)
}

func validateTimeClaims(claims map[string]interface{}, skew time.Duration) error {
	if skew <= 0 {
		return nil
	}

	now := time.Now()
	if exp, ok := numericDate(claims["exp"]); ok {
		if now.After(exp.Add(skew)) {
			return errors.New("token expired")
		}
	}
	if nbf, ok := numericDate(claims["nbf"]); ok {
		if now.Add(skew).Before(nbf) {
			return errors.New("token not valid yet")
		}
	}
	return nil
}

func numericDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	default:
		return time.Time{}, false
	}
}

func extractAudience(claims map[string]interface{}) []string {
	raw, ok := claims["aud"]
	if !ok {
		return nil
	}

	switch val := raw.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []interface{}:
		result := make([]string, 0, len(val))
		for _, item := range val {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}
