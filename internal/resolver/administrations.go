package resolver

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/levante-framework/levante-dashboard-sub000/internal/batchget"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

const (
	statsCollection = "stats"
	statsTotalID    = "total"
	// FieldStats holds attached stats documents keyed by org id.
	FieldStats = "stats"
)

// AdministrationPageRequest selects a page of administrations.
type AdministrationPageRequest struct {
	// OpenOn keeps administrations still open on that date.
	OpenOn  *time.Time
	OrderBy []planner.OrderBy
	Page    planner.Page
	// StatsOrgIDs attaches administrations/{id}/stats/{orgId} for each
	// listed org, plus the total.
	StatsOrgIDs []string
}

func (req AdministrationPageRequest) params(scope model.OrgSets, aggregation bool) planner.AdministrationParams {
	return planner.AdministrationParams{
		Scope:       scope,
		OpenOn:      req.OpenOn,
		OrderBy:     req.OrderBy,
		Page:        req.Page,
		Aggregation: aggregation,
	}
}

// FetchAdministrations returns one page of administrations assigned to orgs
// the caller can see.
func (r *Resolver) FetchAdministrations(ctx context.Context, perms model.Permissions, req AdministrationPageRequest) (recs []docvalue.Record, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.fetch_administrations", dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "fetch_administrations", scoped, started, len(recs), err)
		finishResolverSpan(span, err, "")
	}()

	if err = checkIDs("stats org id", req.StatsOrgIDs...); err != nil {
		return nil, err
	}
	if !scoped {
		var built planner.Request
		built, err = planner.BuildAdministrationsRequest(req.params(nil, false))
		if err != nil {
			return nil, err
		}
		if recs, err = r.query(ctx, built); err != nil {
			return nil, err
		}
	} else {
		var all []docvalue.Record
		if all, err = r.scopedAdministrations(ctx, perms, req); err != nil {
			return nil, err
		}
		recs = page(all, planner.EffectiveOrder(req.OrderBy, planner.DefaultAdministrationOrder), req.Page)
	}
	if len(req.StatsOrgIDs) > 0 {
		if err := r.attachStats(ctx, recs, req.StatsOrgIDs); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// CountAdministrations counts what FetchAdministrations would return across all pages.
func (r *Resolver) CountAdministrations(ctx context.Context, perms model.Permissions, req AdministrationPageRequest) (n int64, err error) {
	scoped := !perms.SuperAdmin
	ctx, span := startResolverSpan(ctx, "resolver.count_administrations", dispatchAttr(scoped))
	started := time.Now()
	defer func() {
		r.observe(ctx, "count_administrations", scoped, started, int(n), err)
		finishResolverSpan(span, err, "")
	}()

	if !scoped {
		built, err := planner.BuildAdministrationsRequest(req.params(nil, true))
		if err != nil {
			return 0, err
		}
		return r.count(ctx, "count_administrations", built)
	}
	all, err := r.scopedAdministrations(ctx, perms, req)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// scopedAdministrations runs one unordered, unpaged query per chunk of
// visible org ids and merges the results by id.
func (r *Resolver) scopedAdministrations(ctx context.Context, perms model.Permissions, req AdministrationPageRequest) ([]docvalue.Record, error) {
	visible, err := r.access.VisibleOrgs(ctx, perms.AdminOrgs)
	if err != nil {
		return nil, err
	}
	if visible.Total() == 0 {
		return []docvalue.Record{}, nil
	}

	selectFields := planner.AdministrationSelect(req.OrderBy)

	var mu sync.Mutex
	merged := map[string]docvalue.Record{}
	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range planner.ChunkOrgScope(visible, planner.MaxDisjunctionValues) {
		params := req.params(chunk, false)
		params.Page = planner.Page{}
		params.Select = selectFields
		built, err := planner.BuildAdministrationsRequest(params)
		if err != nil {
			return nil, err
		}
		// Ordering happens client-side so records missing the sort field survive.
		built.Query.StructuredQuery.OrderBy = nil
		g.Go(func() error {
			recs, err := r.query(gctx, built)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, rec := range recs {
				merged[rec.ID()] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]docvalue.Record, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	return out, nil
}

// attachStats batch-gets the stats documents of each administration and
// stores the found ones under FieldStats keyed by org id.
func (r *Resolver) attachStats(ctx context.Context, recs []docvalue.Record, orgIDs []string) error {
	keys := append([]string{statsTotalID}, orgIDs...)
	refs := make([]batchget.Ref, 0, len(recs)*len(keys))
	for _, rec := range recs {
		for _, key := range keys {
			refs = append(refs, batchget.Ref{Parent: "administrations/" + rec.ID(), Collection: statsCollection, ID: key})
		}
	}
	stats, err := r.docs.Get(ctx, refs)
	if err != nil {
		return err
	}
	i := 0
	for _, rec := range recs {
		attached := map[string]any{}
		for _, key := range keys {
			if s := stats[i]; s != nil {
				delete(s, docvalue.FieldID)
				delete(s, docvalue.FieldParentDoc)
				attached[key] = map[string]any(s)
			}
			i++
		}
		rec[FieldStats] = attached
	}
	return nil
}
