package resolver

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/levante-framework/levante-dashboard-sub000/internal/batchget"
	"github.com/levante-framework/levante-dashboard-sub000/internal/dbexec"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/observability"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
	"github.com/levante-framework/levante-dashboard-sub000/internal/setutil"
)

// DefaultScoreField is where a run keeps its headline score.
const DefaultScoreField = "scores.computed.composite"

// Status is the progress of an assignment or one of its tasks.
type Status string

const (
	StatusAssigned  Status = "assigned"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
)

// TaskView is one assessment of an assignment with its best run.
type TaskView struct {
	TaskID string          `json:"taskId"`
	Status Status          `json:"status"`
	Score  any             `json:"score,omitempty"`
	RunID  string          `json:"runId,omitempty"`
	Run    docvalue.Record `json:"run,omitempty"`
}

// AssignmentView is an assignment joined with its assignee and scores.
type AssignmentView struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Status     Status          `json:"status"`
	Assignment docvalue.Record `json:"assignment"`
	User       docvalue.Record `json:"user"`
	Tasks      []TaskView      `json:"tasks"`
}

// EnrichOptions controls what EnrichAssignments joins in.
type EnrichOptions struct {
	IncludeScores bool
	// TaskIDs limits score lookups; empty means every task the assignments list.
	TaskIDs    []string
	ScoreField string
	// OrgType and OrgID scope run lookups through readOrgs when set.
	OrgType model.OrgType
	OrgID   string
}

// Enricher joins assignments with users and runs.
type Enricher struct {
	exec    dbexec.QueryExecutor
	docs    *batchget.Fetcher
	metrics *observability.QueryMetrics
}

// NewEnricher returns an Enricher. metrics may be nil.
func NewEnricher(exec dbexec.QueryExecutor, docs *batchget.Fetcher, metrics *observability.QueryMetrics) *Enricher {
	return &Enricher{exec: exec, docs: docs, metrics: metrics}
}

type runKey struct {
	userID       string
	assignmentID string
	taskID       string
}

// EnrichAssignments attaches the assignee, task statuses and, when asked,
// best-run scores to each assignment. Assignments must carry parentDoc.
// Missing users or runs leave the matching fields nil.
func (e *Enricher) EnrichAssignments(ctx context.Context, assignments []docvalue.Record, opts EnrichOptions) ([]AssignmentView, error) {
	if len(assignments) == 0 {
		return []AssignmentView{}, nil
	}
	if opts.ScoreField == "" {
		opts.ScoreField = DefaultScoreField
	}

	userIDs := make([]string, 0, len(assignments))
	assignmentIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		userIDs = append(userIDs, a.ParentID())
		assignmentIDs = append(assignmentIDs, a.ID())
	}
	userIDs = setutil.Dedupe(userIDs)
	assignmentIDs = setutil.Dedupe(assignmentIDs)

	var (
		users map[string]docvalue.Record
		runs  map[runKey]docvalue.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = e.docs.ByID(gctx, batchget.Refs("users", userIDs...), planner.UserSelectFields...)
		return err
	})
	if opts.IncludeScores {
		taskIDs := opts.TaskIDs
		if len(taskIDs) == 0 {
			taskIDs = assignedTasks(assignments)
		}
		g.Go(func() (err error) {
			runs, err = e.bestRuns(gctx, assignmentIDs, taskIDs, opts)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	missingUsers := 0
	views := make([]AssignmentView, len(assignments))
	for i, a := range assignments {
		userID := a.ParentID()
		user := users[userID]
		if user == nil {
			missingUsers++
		}
		views[i] = AssignmentView{
			ID:         a.ID(),
			UserID:     userID,
			Status:     assignmentStatus(a),
			Assignment: a,
			User:       user,
			Tasks:      e.tasks(a, runs, opts),
		}
	}

	e.metrics.RecordEnrichmentMissing(ctx, "user", missingUsers)
	logging.FromContext(ctx).Debug("enriched assignments",
		slog.Int("assignments", len(views)),
		slog.Int("users", len(users)),
		slog.Int("runs", len(runs)),
	)
	return views, nil
}

// bestRuns discovers best runs by query, one fan-out branch per task and
// assignment-id chunk, and indexes them by (user, assignment, task).
func (e *Enricher) bestRuns(ctx context.Context, assignmentIDs, taskIDs []string, opts EnrichOptions) (map[runKey]docvalue.Record, error) {
	var mu sync.Mutex
	out := map[runKey]docvalue.Record{}
	g, gctx := errgroup.WithContext(ctx)
	for _, taskID := range setutil.Dedupe(taskIDs) {
		for _, chunk := range planner.ChunkValues(assignmentIDs, planner.MaxDisjunctionValues) {
			req, err := planner.BuildRunsRequest(planner.RunParams{
				AssignmentIDs: chunk,
				TaskID:        taskID,
				OrgType:       opts.OrgType,
				OrgID:         opts.OrgID,
			})
			if err != nil {
				return nil, err
			}
			g.Go(func() error {
				docs, err := e.exec.RunQuery(gctx, *req.Query)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				for _, doc := range docs {
					run := docvalue.DecodeDocument(doc, true)
					key := runKey{
						userID:       run.ParentID(),
						assignmentID: run.String("assignmentId"),
						taskID:       run.String("taskId"),
					}
					if cur, ok := out[key]; !ok || preferRun(run, cur) {
						out[key] = run
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// preferRun picks between two best runs for the same user, assignment and
// task: completed first, then the latest timeFinished, then the lower run id.
func preferRun(a, b docvalue.Record) bool {
	if ac, bc := a.Bool("completed"), b.Bool("completed"); ac != bc {
		return ac
	}
	at, aok := a.Time("timeFinished")
	bt, bok := b.Time("timeFinished")
	switch {
	case aok && !bok:
		return true
	case bok && !aok:
		return false
	case aok && !at.Equal(bt):
		return at.After(bt)
	}
	return a.ID() < b.ID()
}

func (e *Enricher) tasks(a docvalue.Record, runs map[runKey]docvalue.Record, opts EnrichOptions) []TaskView {
	assessments, _ := a.Get("assessments")
	items, _ := assessments.([]any)
	out := make([]TaskView, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		task := docvalue.Record(m)
		taskID := task.String("taskId")
		if taskID == "" {
			continue
		}
		view := TaskView{TaskID: taskID, Status: taskStatus(task), RunID: task.String("runId")}
		if opts.IncludeScores {
			if run, ok := runs[runKey{userID: a.ParentID(), assignmentID: a.ID(), taskID: taskID}]; ok {
				view.Run = run
				view.RunID = run.ID()
				if score, ok := run.Get(opts.ScoreField); ok {
					view.Score = docvalue.JSONSafe(score)
				}
				if run.Bool("completed") {
					view.Status = StatusCompleted
				}
			}
		}
		out = append(out, view)
	}
	return out
}

// assignmentStatus checks completed, then started; the first true flag wins.
func assignmentStatus(a docvalue.Record) Status {
	switch {
	case a.Bool("completed"):
		return StatusCompleted
	case a.Bool("started"):
		return StatusStarted
	default:
		return StatusAssigned
	}
}

func taskStatus(task docvalue.Record) Status {
	switch {
	case present(task, "completedOn"):
		return StatusCompleted
	case present(task, "startedOn"):
		return StatusStarted
	default:
		return StatusAssigned
	}
}

func present(rec docvalue.Record, path string) bool {
	v, ok := rec.Get(path)
	return ok && v != nil
}

func assignedTasks(assignments []docvalue.Record) []string {
	var out []string
	for _, a := range assignments {
		assessments, _ := a.Get("assessments")
		items, _ := assessments.([]any)
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				if id, ok := m["taskId"].(string); ok {
					out = append(out, id)
				}
			}
		}
	}
	return setutil.Dedupe(out)
}
