package access

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/setutil"
)

// CanAccessOrg reports whether the grants reach one org. Directly granted
// orgs are always accessible; otherwise the org's parents are looked up to
// build the scope AccessibleIDs needs.
func (r *Resolver) CanAccessOrg(ctx context.Context, grants *model.AdminOrgs, orgType model.OrgType, orgID string) (bool, error) {
	if grants == nil || orgID == "" {
		return false, nil
	}
	if setutil.New(grants.IDs(orgType)...).Has(orgID) {
		return true, nil
	}

	var scope Scope
	switch orgType {
	case model.OrgDistrict, model.OrgGroup, model.OrgFamily:
	case model.OrgSchool:
		school, err := r.fetch(ctx, model.OrgSchool, []string{orgID}, fieldDistrictID)
		if err != nil {
			return false, err
		}
		scope.SelectedDistrict = school[orgID].String(fieldDistrictID)
	case model.OrgClass:
		class, err := r.fetch(ctx, model.OrgClass, []string{orgID}, fieldSchoolID)
		if err != nil {
			return false, err
		}
		scope.SelectedSchool = class[orgID].String(fieldSchoolID)
	default:
		return false, fmt.Errorf("unknown org type %d", orgType)
	}

	ids, err := r.AccessibleIDs(ctx, orgType, grants, scope)
	if err != nil {
		return false, err
	}
	return ids.Has(orgID), nil
}

// VisibleOrgs returns every org relevant to the grants: the granted orgs,
// their ancestors, and the schools and classes below granted districts and
// schools. It scopes listings such as administrations, which may be
// assigned at any level of the hierarchy.
func (r *Resolver) VisibleOrgs(ctx context.Context, grants *model.AdminOrgs) (model.OrgSets, error) {
	out := model.OrgSets{}
	if grants == nil || grants.Empty() {
		return out, nil
	}

	districts := setutil.New(grants.Districts...)
	schools := setutil.New(grants.Schools...)
	classes := setutil.New(grants.Classes...)

	var districtDocs, schoolDocs, classDocs map[string]docvalue.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		districtDocs, err = r.fetch(gctx, model.OrgDistrict, grants.Districts, fieldSchools)
		return err
	})
	g.Go(func() (err error) {
		schoolDocs, err = r.fetch(gctx, model.OrgSchool, grants.Schools, fieldDistrictID, fieldClasses)
		return err
	})
	g.Go(func() (err error) {
		classDocs, err = r.fetch(gctx, model.OrgClass, grants.Classes, fieldDistrictID, fieldSchoolID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	descendantSchools := setutil.New()
	for _, rec := range districtDocs {
		descendantSchools.Add(rec.Strings(fieldSchools)...)
	}
	for _, rec := range schoolDocs {
		districts.Add(rec.String(fieldDistrictID))
		classes.Add(rec.Strings(fieldClasses)...)
	}
	for _, rec := range classDocs {
		districts.Add(rec.String(fieldDistrictID))
		schools.Add(rec.String(fieldSchoolID))
	}

	// Schools under granted districts contribute their classes too.
	var pending []string
	for id := range descendantSchools {
		if _, fetched := schoolDocs[id]; !fetched {
			pending = append(pending, id)
		}
	}
	more, err := r.fetch(ctx, model.OrgSchool, pending, fieldClasses)
	if err != nil {
		return nil, err
	}
	for _, rec := range more {
		classes.Add(rec.Strings(fieldClasses)...)
	}
	schools = schools.Union(descendantSchools)

	sets := map[model.OrgType]setutil.Set{
		model.OrgDistrict: districts,
		model.OrgSchool:   schools,
		model.OrgClass:    classes,
		model.OrgGroup:    setutil.New(grants.Groups...),
		model.OrgFamily:   setutil.New(grants.Families...),
	}
	for _, t := range model.AllOrgTypes {
		if ids := sets[t].Sorted(); len(ids) > 0 {
			out[t] = ids
		}
	}
	return out, nil
}
