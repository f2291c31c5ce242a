package resolver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/levante-framework/levante-dashboard-sub000/internal/batchget"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
	"github.com/levante-framework/levante-dashboard-sub000/internal/setutil"
)

// AssignmentPageRequest selects a page of per-user assignments of one
// administration, seen through one org.
type AssignmentPageRequest struct {
	AdministrationID string
	OrgType          model.OrgType
	OrgID            string
	Filters          []planner.FieldFilter
	OrderBy          []planner.OrderBy
	Page             planner.Page
	IncludeScores    bool
	TaskIDs          []string
	ScoreField       string
}

func (req AssignmentPageRequest) params(aggregation bool) planner.AssignmentParams {
	return planner.AssignmentParams{
		AdministrationID: req.AdministrationID,
		OrgType:          req.OrgType,
		OrgID:            req.OrgID,
		Filters:          req.Filters,
		OrderBy:          req.OrderBy,
		Page:             req.Page,
		Aggregation:      aggregation,
	}
}

// FetchAssignmentsPage returns one page of enriched assignments. Callers
// without access to the org get an empty page.
func (r *Resolver) FetchAssignmentsPage(ctx context.Context, perms model.Permissions, req AssignmentPageRequest) (views []AssignmentView, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.fetch_assignments_page",
		attribute.String("dashboard.administration_id", req.AdministrationID),
		attribute.Bool("dashboard.include_scores", req.IncludeScores),
		dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "fetch_assignments_page", scoped, started, len(views), err)
		finishResolverSpan(span, err, "")
	}()

	allowed, err := r.orgAllowed(ctx, perms, req.OrgType, req.OrgID)
	if err != nil || !allowed {
		return []AssignmentView{}, err
	}
	built, err := planner.BuildAssignmentsRequest(req.params(false))
	if err != nil {
		return nil, err
	}
	assignments, err := r.query(ctx, built)
	if err != nil {
		return nil, err
	}
	return r.enricher.EnrichAssignments(ctx, assignments, EnrichOptions{
		IncludeScores: req.IncludeScores,
		TaskIDs:       req.TaskIDs,
		ScoreField:    req.ScoreField,
		OrgType:       req.OrgType,
		OrgID:         req.OrgID,
	})
}

// CountAssignments counts the assignments FetchAssignmentsPage would return across all pages.
func (r *Resolver) CountAssignments(ctx context.Context, perms model.Permissions, req AssignmentPageRequest) (n int64, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.count_assignments",
		attribute.String("dashboard.administration_id", req.AdministrationID), dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "count_assignments", scoped, started, int(n), err)
		finishResolverSpan(span, err, "")
	}()

	allowed, err := r.orgAllowed(ctx, perms, req.OrgType, req.OrgID)
	if err != nil || !allowed {
		return 0, err
	}
	built, err := planner.BuildAssignmentsRequest(req.params(true))
	if err != nil {
		return 0, err
	}
	return r.count(ctx, "count_assignments", built)
}

// FetchRunsByRef loads specific runs of one user by fully-qualified path.
// The result matches runIDs in length and order; missing runs and runs the
// caller cannot see through readOrgs are nil.
func (r *Resolver) FetchRunsByRef(ctx context.Context, perms model.Permissions, userID string, runIDs []string) (recs []docvalue.Record, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.fetch_runs_by_ref",
		attribute.Int("dashboard.run_count", len(runIDs)), dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "fetch_runs_by_ref", scoped, started, len(recs), err)
		finishResolverSpan(span, err, "")
	}()

	if err = checkIDs("user id", userID); err != nil {
		return nil, err
	}
	if err = checkIDs("run id", runIDs...); err != nil {
		return nil, err
	}
	refs := make([]batchget.Ref, len(runIDs))
	for i, id := range runIDs {
		refs[i] = batchget.Ref{Parent: "users/" + userID, Collection: "runs", ID: id}
	}
	recs, err = r.docs.Get(ctx, refs)
	if err != nil || !scoped {
		return recs, err
	}

	visible, err := r.access.VisibleOrgs(ctx, perms.AdminOrgs)
	if err != nil {
		return nil, err
	}
	sets := make(map[model.OrgType]setutil.Set, len(visible))
	for t, ids := range visible {
		sets[t] = setutil.New(ids...)
	}
	for i, run := range recs {
		if run != nil && !readableBy(run, sets) {
			recs[i] = nil
		}
	}
	return recs, nil
}

func readableBy(run docvalue.Record, visible map[model.OrgType]setutil.Set) bool {
	for _, t := range model.AllOrgTypes {
		for _, id := range run.Strings(planner.ReadOrgsField(t)) {
			if visible[t].Has(id) {
				return true
			}
		}
	}
	return false
}
