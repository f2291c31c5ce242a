package planner

import (
	"fmt"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/setutil"
)

const (
	FieldArchived   = "archived"
	FieldName       = "name"
	FieldDistrictID = "districtId"
	FieldSchoolID   = "schoolId"
)

var orgSelectFields = map[model.OrgType][]string{
	model.OrgDistrict: {"name", "normalizedName", "abbreviation", "schools", "archived", "tags", "clever", "classlink", "lastSync"},
	model.OrgSchool:   {"name", "normalizedName", "abbreviation", "districtId", "classes", "archived", "tags", "clever", "classlink"},
	model.OrgClass:    {"name", "normalizedName", "schoolId", "districtId", "grade", "schoolLevel", "archived", "tags", "clever", "classlink"},
	model.OrgGroup:    {"name", "normalizedName", "abbreviation", "parentOrgId", "parentOrgType", "archived", "tags"},
	model.OrgFamily:   {"name", "normalizedName", "tags"},
}

// Family documents carry no archived flag; an archived == false filter
// would exclude all of them.
var archivableOrgs = map[model.OrgType]bool{
	model.OrgDistrict: true,
	model.OrgSchool:   true,
	model.OrgClass:    true,
	model.OrgGroup:    true,
}

// DefaultOrgOrder sorts organizations by name.
var DefaultOrgOrder = []OrderBy{{Field: FieldName, Direction: Ascending}}

// Archivable reports whether active queries on t exclude archived orgs.
func Archivable(t model.OrgType) bool { return archivableOrgs[t] }

// OrgSelectFields returns the projection used for an org type, extended with
// any ordering fields not already selected.
func OrgSelectFields(t model.OrgType, orderBy []OrderBy) []string {
	return withOrderFields(orgSelectFields[t], orderBy)
}

func withOrderFields(base []string, orderBy []OrderBy) []string {
	fields := make([]string, 0, len(base)+len(orderBy))
	fields = append(fields, base...)
	return setutil.Dedupe(append(fields, OrderFields(orderBy)...))
}

// OrgParams describes an organization listing or count.
type OrgParams struct {
	OrgType model.OrgType
	// ParentDistrict scopes to orgs whose districtId matches.
	ParentDistrict string
	// ParentSchool scopes to orgs whose schoolId matches; it takes
	// precedence over ParentDistrict because it is the nearer parent.
	ParentSchool    string
	OrgName         string
	IncludeArchived bool
	Filters         []FieldFilter
	OrderBy         []OrderBy
	Page            Page
	Select          []string
	Aggregation     bool
}

// OrgFilters returns the field filters for the parameters in a fixed order:
// archived seed, parent scope, name, then extra filters.
//
//	name  school  district | added
//	 -      -        -     | -
//	 -      -        D     | districtId == D
//	 -      S        *     | schoolId == S
//	 N      -        -     | name == N
//	 N      -        D     | districtId == D, name == N
//	 N      S        *     | schoolId == S, name == N
func OrgFilters(p OrgParams) []FieldFilter {
	var filters []FieldFilter
	if !p.IncludeArchived && Archivable(p.OrgType) {
		filters = append(filters, Eq(FieldArchived, docvalue.Bool(false)))
	}
	switch {
	case p.ParentSchool != "":
		filters = append(filters, Eq(FieldSchoolID, docvalue.String(p.ParentSchool)))
	case p.ParentDistrict != "":
		filters = append(filters, Eq(FieldDistrictID, docvalue.String(p.ParentDistrict)))
	}
	if p.OrgName != "" {
		filters = append(filters, Eq(FieldName, docvalue.String(p.OrgName)))
	}
	return append(filters, p.Filters...)
}

// BuildOrgRequest builds the listing or count request for an org collection.
func BuildOrgRequest(p OrgParams) (Request, error) {
	if !p.OrgType.Valid() {
		return Request{}, fmt.Errorf("invalid org type %d", int(p.OrgType))
	}

	q := StructuredQuery{
		From:    from(p.OrgType.Collection(), false),
		Where:   And(OrgFilters(p)...),
		OrderBy: orders(p.OrderBy, DefaultOrgOrder),
	}
	selectFields := p.Select
	if len(selectFields) == 0 {
		selectFields = OrgSelectFields(p.OrgType, p.OrderBy)
	}
	q.Select = projection(selectFields)
	p.Page.apply(&q)

	return finalize("", q, p.Aggregation), nil
}
