package planner

import (
	"fmt"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
)

const usersCollection = "users"

// UserSelectFields is the reduced projection used for user listings and
// for the user lookups done while enriching assignments.
var UserSelectFields = []string{"username", "name", "email", "userType", "studentData", "archived", "assessmentPid"}

// DefaultUserOrder sorts users by username.
var DefaultUserOrder = []OrderBy{{Field: "username", Direction: Ascending}}

// UserParams describes a listing or count of the users in one org.
type UserParams struct {
	OrgType         model.OrgType
	OrgID           string
	UserType        string
	IncludeArchived bool
	OrderBy         []OrderBy
	Page            Page
	Select          []string
	Aggregation     bool
}

// CurrentMembershipField is the array of current memberships for an org type, e.g. schools.current.
func CurrentMembershipField(t model.OrgType) string {
	return t.Collection() + ".current"
}

// BuildUsersByOrgRequest builds the listing or count request for users
// currently enrolled in an org.
func BuildUsersByOrgRequest(p UserParams) (Request, error) {
	if !p.OrgType.Valid() {
		return Request{}, fmt.Errorf("invalid org type %d", int(p.OrgType))
	}
	if p.OrgID == "" {
		return Request{}, fmt.Errorf("org id is required")
	}

	filters := []FieldFilter{ArrayContains(CurrentMembershipField(p.OrgType), p.OrgID)}
	if !p.IncludeArchived {
		filters = append(filters, Eq(FieldArchived, docvalue.Bool(false)))
	}
	if p.UserType != "" {
		filters = append(filters, Eq("userType", docvalue.String(p.UserType)))
	}

	selectFields := p.Select
	if len(selectFields) == 0 {
		selectFields = UserSelectFields
	}
	q := StructuredQuery{
		Select:  projection(selectFields),
		From:    from(usersCollection, false),
		Where:   And(filters...),
		OrderBy: orders(p.OrderBy, DefaultUserOrder),
	}
	p.Page.apply(&q)
	return finalize("", q, p.Aggregation), nil
}
