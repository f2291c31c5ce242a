// Package access expands an admin's directly granted orgs into the full set
// of org ids they may see, deriving ancestors and descendants from the
// district, school and class documents.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/levante-framework/levante-dashboard-sub000/internal/batchget"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/observability"
	"github.com/levante-framework/levante-dashboard-sub000/internal/setutil"
)

const (
	fieldDistrictID = "districtId"
	fieldSchoolID   = "schoolId"
	fieldSchools    = "schools"
	fieldClasses    = "classes"
)

// DocumentFetcher loads documents by reference. *batchget.Fetcher satisfies it.
type DocumentFetcher interface {
	ByID(ctx context.Context, refs []batchget.Ref, mask ...string) (map[string]docvalue.Record, error)
}

// Scope carries the parent selection that school and class lookups need.
type Scope struct {
	SelectedDistrict string
	SelectedSchool   string
}

// Resolver derives accessible org ids. It holds no per-call state.
type Resolver struct {
	docs    DocumentFetcher
	metrics *observability.QueryMetrics
}

// NewResolver returns a Resolver. metrics may be nil.
func NewResolver(docs DocumentFetcher, metrics *observability.QueryMetrics) *Resolver {
	return &Resolver{docs: docs, metrics: metrics}
}

// AccessibleIDs returns the ids of orgType the grants give access to.
// Missing grants, a missing required scope value and documents that cannot
// be found all yield fewer ids, never an error; only store failures do.
func (r *Resolver) AccessibleIDs(ctx context.Context, orgType model.OrgType, grants *model.AdminOrgs, scope Scope) (setutil.Set, error) {
	if grants == nil {
		return setutil.New(), nil
	}

	var (
		ids setutil.Set
		err error
	)
	switch orgType {
	case model.OrgDistrict:
		ids, err = r.districts(ctx, grants)
	case model.OrgSchool:
		ids, err = r.schools(ctx, grants, scope.SelectedDistrict)
	case model.OrgClass:
		ids, err = r.classes(ctx, grants, scope.SelectedSchool)
	case model.OrgGroup, model.OrgFamily:
		ids = setutil.New(grants.IDs(orgType)...)
	default:
		return nil, fmt.Errorf("unknown org type %d", orgType)
	}
	if err != nil {
		return nil, err
	}

	r.metrics.RecordAccessibleIDs(ctx, orgType.Collection(), ids.Len())
	logging.FromContext(ctx).Debug("resolved accessible orgs",
		slog.String("org_type", orgType.Collection()),
		slog.Int("count", ids.Len()),
	)
	return ids, nil
}

// CountAccessible counts the ids AccessibleIDs would return.
func (r *Resolver) CountAccessible(ctx context.Context, orgType model.OrgType, grants *model.AdminOrgs, scope Scope) (int, error) {
	ids, err := r.AccessibleIDs(ctx, orgType, grants, scope)
	if err != nil {
		return 0, err
	}
	return ids.Len(), nil
}

// districts is the granted districts plus the districtId of every granted
// school and class.
func (r *Resolver) districts(ctx context.Context, grants *model.AdminOrgs) (setutil.Set, error) {
	out := setutil.New(grants.Districts...)

	var schools, classes map[string]docvalue.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		schools, err = r.fetch(gctx, model.OrgSchool, grants.Schools, fieldDistrictID)
		return err
	})
	g.Go(func() (err error) {
		classes, err = r.fetch(gctx, model.OrgClass, grants.Classes, fieldDistrictID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, rec := range schools {
		out.Add(rec.String(fieldDistrictID))
	}
	for _, rec := range classes {
		out.Add(rec.String(fieldDistrictID))
	}
	return out, nil
}

// schools lists the selected district's schools, all of them when the
// district is granted and otherwise those granted directly or through a
// granted class.
func (r *Resolver) schools(ctx context.Context, grants *model.AdminOrgs, districtID string) (setutil.Set, error) {
	if districtID == "" {
		return setutil.New(), nil
	}

	districtGranted := setutil.New(grants.Districts...).Has(districtID)
	var district, classes map[string]docvalue.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		district, err = r.fetch(gctx, model.OrgDistrict, []string{districtID}, fieldSchools)
		return err
	})
	if !districtGranted {
		g.Go(func() (err error) {
			classes, err = r.fetch(gctx, model.OrgClass, grants.Classes, fieldSchoolID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	children := setutil.New(district[districtID].Strings(fieldSchools)...)
	if districtGranted {
		return children, nil
	}
	candidates := setutil.New(grants.Schools...)
	for _, rec := range classes {
		candidates.Add(rec.String(fieldSchoolID))
	}
	return children.Intersect(candidates), nil
}

// classes lists the selected school's classes, all of them when the school
// or its district is granted and otherwise only granted classes.
func (r *Resolver) classes(ctx context.Context, grants *model.AdminOrgs, schoolID string) (setutil.Set, error) {
	if schoolID == "" {
		return setutil.New(), nil
	}

	school, err := r.fetch(ctx, model.OrgSchool, []string{schoolID}, fieldClasses, fieldDistrictID)
	if err != nil {
		return nil, err
	}
	rec := school[schoolID]
	children := setutil.New(rec.Strings(fieldClasses)...)

	if setutil.New(grants.Schools...).Has(schoolID) {
		return children, nil
	}
	if districtID := rec.String(fieldDistrictID); districtID != "" && setutil.New(grants.Districts...).Has(districtID) {
		return children, nil
	}
	return children.Intersect(setutil.New(grants.Classes...)), nil
}

func (r *Resolver) fetch(ctx context.Context, t model.OrgType, ids []string, mask ...string) (map[string]docvalue.Record, error) {
	ids = setutil.Dedupe(ids)
	if len(ids) == 0 {
		return map[string]docvalue.Record{}, nil
	}
	recs, err := r.docs.ByID(ctx, batchget.Refs(t.Collection(), ids...), mask...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", t.Collection(), err)
	}
	return recs, nil
}
