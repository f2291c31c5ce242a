package dbexec

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Credential modes for NewHTTPClient.
const (
	CredentialsGoogle = "google"
	CredentialsToken  = "token"
	CredentialsNone   = "none"
)

const datastoreScope = "https://www.googleapis.com/auth/datastore"

// ClientConfig controls how outgoing store requests are authenticated.
type ClientConfig struct {
	Credentials string
	// Token is the static bearer token used with CredentialsToken.
	Token   string
	Timeout time.Duration
}

// NewHTTPClient returns a traced HTTP client that attaches credentials to
// every request. CredentialsNone is meant for the local emulator.
func NewHTTPClient(ctx context.Context, cfg ClientConfig) (*http.Client, error) {
	pool := http.DefaultTransport.(*http.Transport).Clone()
	base := otelhttp.NewTransport(pool,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "docstore " + operationFromPath(r.URL.Path)
		}),
	)

	var transport http.RoundTripper
	switch strings.ToLower(strings.TrimSpace(cfg.Credentials)) {
	case "", CredentialsGoogle:
		source, err := google.DefaultTokenSource(ctx, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		transport = &oauth2.Transport{Source: source, Base: base}
	case CredentialsToken:
		if strings.TrimSpace(cfg.Token) == "" {
			return nil, fmt.Errorf("token credentials require a token")
		}
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}),
			Base:   base,
		}
	case CredentialsNone:
		transport = base
	default:
		return nil, fmt.Errorf("unknown credentials mode %q", cfg.Credentials)
	}

	return &http.Client{
		Transport: pooledTransport{RoundTripper: transport, pool: pool},
		Timeout:   cfg.Timeout,
	}, nil
}

// pooledTransport exposes CloseIdleConnections of the connection pool
// underneath the auth and tracing wrappers.
type pooledTransport struct {
	http.RoundTripper
	pool *http.Transport
}

func (t pooledTransport) CloseIdleConnections() {
	t.pool.CloseIdleConnections()
}

func operationFromPath(path string) string {
	if idx := strings.LastIndex(path, ":"); idx >= 0 {
		return path[idx+1:]
	}
	return "request"
}
