package resolver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/levante-framework/levante-dashboard-sub000/internal/access"
	"github.com/levante-framework/levante-dashboard-sub000/internal/batchget"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

// OrgPageRequest selects a page of one org type.
type OrgPageRequest struct {
	OrgType model.OrgType
	// ParentDistrict scopes schools; ParentSchool scopes classes.
	ParentDistrict  string
	ParentSchool    string
	OrgName         string
	IncludeArchived bool
	OrderBy         []planner.OrderBy
	Page            planner.Page
}

func (req OrgPageRequest) params(aggregation bool) planner.OrgParams {
	return planner.OrgParams{
		OrgType:         req.OrgType,
		ParentDistrict:  req.ParentDistrict,
		ParentSchool:    req.ParentSchool,
		OrgName:         req.OrgName,
		IncludeArchived: req.IncludeArchived,
		OrderBy:         req.OrderBy,
		Page:            req.Page,
		Aggregation:     aggregation,
	}
}

// FetchOrgPage returns one page of orgs visible to the caller.
func (r *Resolver) FetchOrgPage(ctx context.Context, perms model.Permissions, req OrgPageRequest) (recs []docvalue.Record, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.fetch_org_page",
		attribute.String("dashboard.org_type", req.OrgType.Collection()), dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "fetch_org_page", scoped, started, len(recs), err)
		finishResolverSpan(span, err, "")
	}()

	if !scoped {
		built, err := planner.BuildOrgRequest(req.params(false))
		if err != nil {
			return nil, err
		}
		return r.query(ctx, built)
	}

	all, err := r.scopedOrgs(ctx, perms, req)
	if err != nil {
		return nil, err
	}
	return page(all, planner.EffectiveOrder(req.OrderBy, planner.DefaultOrgOrder), req.Page), nil
}

// CountOrgs counts the orgs FetchOrgPage would return across all pages.
func (r *Resolver) CountOrgs(ctx context.Context, perms model.Permissions, req OrgPageRequest) (n int64, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.count_orgs",
		attribute.String("dashboard.org_type", req.OrgType.Collection()), dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "count_orgs", scoped, started, int(n), err)
		finishResolverSpan(span, err, "")
	}()

	if !scoped {
		built, err := planner.BuildOrgRequest(req.params(true))
		if err != nil {
			return 0, err
		}
		return r.count(ctx, "count_orgs", built)
	}

	all, err := r.scopedOrgs(ctx, perms, req)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// AccessibleOrgIDs resolves the accessible ids of one org type for the caller.
func (r *Resolver) AccessibleOrgIDs(ctx context.Context, perms model.Permissions, orgType model.OrgType, scope access.Scope) ([]string, error) {
	ids, err := r.access.AccessibleIDs(ctx, orgType, perms.AdminOrgs, scope)
	if err != nil {
		return nil, err
	}
	return ids.Sorted(), nil
}

// scopedOrgs loads every accessible org and applies the same predicates the
// store-side query would, except that a missing archived flag counts as
// active.
func (r *Resolver) scopedOrgs(ctx context.Context, perms model.Permissions, req OrgPageRequest) ([]docvalue.Record, error) {
	scope := access.Scope{SelectedDistrict: req.ParentDistrict, SelectedSchool: req.ParentSchool}
	ids, err := r.access.AccessibleIDs(ctx, req.OrgType, perms.AdminOrgs, scope)
	if err != nil {
		return nil, err
	}
	if ids.Len() == 0 {
		return []docvalue.Record{}, nil
	}

	mask := planner.OrgSelectFields(req.OrgType, req.OrderBy)
	byID, err := r.docs.ByID(ctx, batchget.Refs(req.OrgType.Collection(), ids.Sorted()...), mask...)
	if err != nil {
		return nil, err
	}

	filters := planner.OrgFilters(req.params(false))
	out := make([]docvalue.Record, 0, len(byID))
	for _, rec := range byID {
		if matchesOrg(rec, filters) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matchesOrg(rec docvalue.Record, filters []planner.FieldFilter) bool {
	for _, f := range filters {
		if f.Field.FieldPath == planner.FieldArchived && f.Op == planner.OpEqual {
			if rec.Bool(planner.FieldArchived) {
				return false
			}
			continue
		}
		if !f.Matches(rec) {
			return false
		}
	}
	return true
}
