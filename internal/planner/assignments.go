package planner

import (
	"fmt"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
)

const (
	assignmentsCollection = "assignments"
	runsCollection        = "runs"
)

var AssignmentSelectFields = []string{
	"id", "assessments", "assigningOrgs", "readOrgs", "started", "completed",
	"dateAssigned", "dateOpened", "dateClosed", "userData",
}

var RunSelectFields = []string{"assignmentId", "taskId", "bestRun", "completed", "scores", "timeStarted", "timeFinished"}

// ReadOrgsField is the readOrgs array for one org type.
func ReadOrgsField(t model.OrgType) string {
	return "readOrgs." + t.Collection()
}

// AssignmentParams describes a listing or count of per-user assignment
// records for one administration, seen through one org.
type AssignmentParams struct {
	AdministrationID string
	OrgType          model.OrgType
	OrgID            string
	Filters          []FieldFilter
	OrderBy          []OrderBy
	Page             Page
	Select           []string
	Aggregation      bool
}

// BuildAssignmentsRequest queries the assignments collection group, which
// holds one document per user under users/{uid}/assignments/{administrationId}.
func BuildAssignmentsRequest(p AssignmentParams) (Request, error) {
	if p.AdministrationID == "" {
		return Request{}, fmt.Errorf("administration id is required")
	}
	if !p.OrgType.Valid() || p.OrgID == "" {
		return Request{}, fmt.Errorf("org type and org id are required")
	}

	filters := []FieldFilter{
		Eq("id", docvalue.String(p.AdministrationID)),
		ArrayContains(ReadOrgsField(p.OrgType), p.OrgID),
	}
	filters = append(filters, p.Filters...)

	selectFields := p.Select
	if len(selectFields) == 0 {
		selectFields = AssignmentSelectFields
	}
	q := StructuredQuery{
		Select:  projection(selectFields),
		From:    from(assignmentsCollection, true),
		Where:   And(filters...),
		OrderBy: orders(p.OrderBy, nil),
	}
	p.Page.apply(&q)
	return finalize("", q, p.Aggregation), nil
}

// RunParams describes a query for best runs of one task.
type RunParams struct {
	// AssignmentIDs filters by administration; one id uses EQUAL, more use IN.
	AssignmentIDs []string
	TaskID        string
	// OrgType and OrgID optionally scope runs through readOrgs.
	OrgType          model.OrgType
	OrgID            string
	RequireCompleted bool
	Select           []string
	Aggregation      bool
}

// BuildRunsRequest queries the runs collection group for best runs.
func BuildRunsRequest(p RunParams) (Request, error) {
	if len(p.AssignmentIDs) == 0 {
		return Request{}, fmt.Errorf("at least one assignment id is required")
	}
	if len(p.AssignmentIDs) > MaxDisjunctionValues {
		return Request{}, fmt.Errorf("%d assignment ids exceed the limit of %d", len(p.AssignmentIDs), MaxDisjunctionValues)
	}
	if p.TaskID == "" {
		return Request{}, fmt.Errorf("task id is required")
	}

	var filters []FieldFilter
	if len(p.AssignmentIDs) == 1 {
		filters = append(filters, Eq("assignmentId", docvalue.String(p.AssignmentIDs[0])))
	} else {
		filters = append(filters, In("assignmentId", p.AssignmentIDs))
	}
	filters = append(filters,
		Eq("taskId", docvalue.String(p.TaskID)),
		Eq("bestRun", docvalue.Bool(true)),
	)
	if p.OrgType.Valid() && p.OrgID != "" {
		filters = append(filters, ArrayContains(ReadOrgsField(p.OrgType), p.OrgID))
	}
	if p.RequireCompleted {
		filters = append(filters, Eq("completed", docvalue.Bool(true)))
	}

	selectFields := p.Select
	if len(selectFields) == 0 {
		selectFields = RunSelectFields
	}
	q := StructuredQuery{
		Select: projection(selectFields),
		From:   from(runsCollection, true),
		Where:  And(filters...),
	}
	return finalize("", q, p.Aggregation), nil
}
