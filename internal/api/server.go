// Package api exposes the dashboard read operations as a JSON HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/levante-framework/levante-dashboard-sub000/internal/access"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/resolver"
)

// Backend is the set of read operations the API serves. *resolver.Resolver
// satisfies it.
type Backend interface {
	Ping(ctx context.Context) error
	FetchOrgPage(ctx context.Context, perms model.Permissions, req resolver.OrgPageRequest) ([]docvalue.Record, error)
	CountOrgs(ctx context.Context, perms model.Permissions, req resolver.OrgPageRequest) (int64, error)
	AccessibleOrgIDs(ctx context.Context, perms model.Permissions, orgType model.OrgType, scope access.Scope) ([]string, error)
	FetchUsersByOrg(ctx context.Context, perms model.Permissions, req resolver.UsersRequest) ([]docvalue.Record, error)
	CountUsersByOrg(ctx context.Context, perms model.Permissions, req resolver.UsersRequest) (int64, error)
	FetchAdministrations(ctx context.Context, perms model.Permissions, req resolver.AdministrationPageRequest) ([]docvalue.Record, error)
	CountAdministrations(ctx context.Context, perms model.Permissions, req resolver.AdministrationPageRequest) (int64, error)
	FetchAssignmentsPage(ctx context.Context, perms model.Permissions, req resolver.AssignmentPageRequest) ([]resolver.AssignmentView, error)
	CountAssignments(ctx context.Context, perms model.Permissions, req resolver.AssignmentPageRequest) (int64, error)
	FetchRunsByRef(ctx context.Context, perms model.Permissions, userID string, runIDs []string) ([]docvalue.Record, error)
}

// Config wires the router.
type Config struct {
	Backend Backend
	// Middleware runs on every request, outermost first.
	Middleware []func(http.Handler) http.Handler
	// Auth runs on /api/v1 only.
	Auth func(http.Handler) http.Handler
	// Metrics, when set, is served at /metrics without auth.
	Metrics http.Handler
	// HealthTimeout bounds the store probe behind /health.
	HealthTimeout time.Duration
}

type server struct {
	backend       Backend
	healthTimeout time.Duration
}

// NewRouter builds the chi router for the API.
func NewRouter(cfg Config) http.Handler {
	s := &server{backend: cfg.Backend, healthTimeout: cfg.HealthTimeout}
	if s.healthTimeout <= 0 {
		s.healthTimeout = 5 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	for _, mw := range cfg.Middleware {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth)
		}

		r.Route("/orgs/{orgType}", func(r chi.Router) {
			r.Get("/", s.handleListOrgs)
			r.Get("/count", s.handleCountOrgs)
			r.Get("/accessible", s.handleAccessibleOrgs)
			r.Get("/{orgId}/users", s.handleListUsers)
			r.Get("/{orgId}/users/count", s.handleCountUsers)
		})

		r.Route("/administrations", func(r chi.Router) {
			r.Get("/", s.handleListAdministrations)
			r.Get("/count", s.handleCountAdministrations)
			r.Get("/{administrationId}/assignments", s.handleListAssignments)
			r.Get("/{administrationId}/assignments/count", s.handleCountAssignments)
		})

		r.Get("/users/{userId}/runs", s.handleRunsByRef)
	})

	return r
}
