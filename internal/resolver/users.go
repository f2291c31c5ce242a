package resolver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

// UsersRequest selects a page of the users currently in one org.
type UsersRequest struct {
	OrgType         model.OrgType
	OrgID           string
	UserType        string
	IncludeArchived bool
	OrderBy         []planner.OrderBy
	Page            planner.Page
}

func (req UsersRequest) params(aggregation bool) planner.UserParams {
	return planner.UserParams{
		OrgType:         req.OrgType,
		OrgID:           req.OrgID,
		UserType:        req.UserType,
		IncludeArchived: req.IncludeArchived,
		OrderBy:         req.OrderBy,
		Page:            req.Page,
		Aggregation:     aggregation,
	}
}

// FetchUsersByOrg returns one page of users in an org. Callers without
// access to the org get an empty page.
func (r *Resolver) FetchUsersByOrg(ctx context.Context, perms model.Permissions, req UsersRequest) (recs []docvalue.Record, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.fetch_users_by_org",
		attribute.String("dashboard.org_type", req.OrgType.Collection()), dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "fetch_users_by_org", scoped, started, len(recs), err)
		finishResolverSpan(span, err, "")
	}()

	allowed, err := r.orgAllowed(ctx, perms, req.OrgType, req.OrgID)
	if err != nil || !allowed {
		return []docvalue.Record{}, err
	}
	built, err := planner.BuildUsersByOrgRequest(req.params(false))
	if err != nil {
		return nil, err
	}
	return r.query(ctx, built)
}

// CountUsersByOrg counts the users FetchUsersByOrg would return across all pages.
func (r *Resolver) CountUsersByOrg(ctx context.Context, perms model.Permissions, req UsersRequest) (n int64, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.count_users_by_org",
		attribute.String("dashboard.org_type", req.OrgType.Collection()), dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "count_users_by_org", scoped, started, int(n), err)
		finishResolverSpan(span, err, "")
	}()

	allowed, err := r.orgAllowed(ctx, perms, req.OrgType, req.OrgID)
	if err != nil || !allowed {
		return 0, err
	}
	built, err := planner.BuildUsersByOrgRequest(req.params(true))
	if err != nil {
		return 0, err
	}
	return r.count(ctx, "count_users_by_org", built)
}

func (r *Resolver) orgAllowed(ctx context.Context, perms model.Permissions, orgType model.OrgType, orgID string) (bool, error) {
	if orgID != "" {
		if err := checkIDs("org id", orgID); err != nil {
			return false, err
		}
	}
	if perms.SuperAdmin {
		return true, nil
	}
	return r.access.CanAccessOrg(ctx, perms.AdminOrgs, orgType, orgID)
}
