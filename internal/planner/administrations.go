package planner

import (
	"fmt"
	"time"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
)

const administrationsCollection = "administrations"

var AdministrationSelectFields = []string{
	"name", "publicName", "normalizedName", "dateOpened", "dateClosed", "dateCreated",
	"assessments", "assignedOrgs", "sequential", "testData", "createdBy",
}

// AdministrationSelect returns AdministrationSelectFields extended with any
// ordering fields not already selected.
func AdministrationSelect(orderBy []OrderBy) []string {
	return withOrderFields(AdministrationSelectFields, orderBy)
}

// DefaultAdministrationOrder sorts administrations by name.
var DefaultAdministrationOrder = []OrderBy{{Field: FieldName, Direction: Ascending}}

// AssignedOrgsField is the assignedOrgs array for one org type.
func AssignedOrgsField(t model.OrgType) string {
	return "assignedOrgs." + t.Collection()
}

// AdministrationParams describes an administrations listing or count.
type AdministrationParams struct {
	// Scope restricts results to administrations assigned to any of these
	// orgs. A nil scope means unrestricted. The total id count must not
	// exceed MaxDisjunctionValues; use ChunkOrgScope for larger scopes.
	Scope model.OrgSets
	// OpenOn, when set, keeps administrations whose dateClosed is on or after it.
	OpenOn      *time.Time
	OrderBy     []OrderBy
	Page        Page
	Select      []string
	Aggregation bool
}

// BuildAdministrationsRequest builds the listing or count request for administrations.
func BuildAdministrationsRequest(p AdministrationParams) (Request, error) {
	if p.Scope != nil && p.Scope.Total() == 0 {
		return Request{}, fmt.Errorf("administration scope is empty")
	}
	if total := p.Scope.Total(); total > MaxDisjunctionValues {
		return Request{}, fmt.Errorf("administration scope has %d org ids, limit is %d", total, MaxDisjunctionValues)
	}

	var clauses []Filter
	if scope := scopeFilter(p.Scope); scope != nil {
		clauses = append(clauses, *scope)
	}
	if p.OpenOn != nil {
		clauses = append(clauses, Field("dateClosed", OpGreaterThanOrEqual, docvalue.Timestamp(*p.OpenOn)).Wrap())
	}

	selectFields := p.Select
	if len(selectFields) == 0 {
		selectFields = AdministrationSelectFields
	}
	q := StructuredQuery{
		Select:  projection(selectFields),
		From:    from(administrationsCollection, false),
		Where:   Combine(CompositeAnd, clauses...),
		OrderBy: orders(p.OrderBy, DefaultAdministrationOrder),
	}
	p.Page.apply(&q)
	return finalize("", q, p.Aggregation), nil
}

// scopeFilter ORs one ARRAY_CONTAINS_ANY clause per org type, in hierarchy order.
func scopeFilter(scope model.OrgSets) *Filter {
	var clauses []Filter
	for _, t := range model.AllOrgTypes {
		ids := scope[t]
		if len(ids) == 0 {
			continue
		}
		clauses = append(clauses, ArrayContainsAny(AssignedOrgsField(t), ids).Wrap())
	}
	return Combine(CompositeOr, clauses...)
}

// ChunkOrgScope splits a scope into pieces holding at most max ids each,
// walking org types in hierarchy order.
func ChunkOrgScope(scope model.OrgSets, max int) []model.OrgSets {
	if max <= 0 {
		max = MaxDisjunctionValues
	}
	var chunks []model.OrgSets
	current := model.OrgSets{}
	size := 0
	for _, t := range model.AllOrgTypes {
		for _, id := range scope[t] {
			if size == max {
				chunks = append(chunks, current)
				current = model.OrgSets{}
				size = 0
			}
			current[t] = append(current[t], id)
			size++
		}
	}
	if size > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// ChunkValues splits values into consecutive chunks of at most max entries.
func ChunkValues(values []string, max int) [][]string {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]string{values}
	}
	chunks := make([][]string, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := start + max
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
