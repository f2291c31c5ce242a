// Package memstore is an in-memory document store for tests. It evaluates
// structured queries, count aggregations and batch gets the way the REST
// backend does, close enough for the shapes the planner emits.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/levante-framework/levante-dashboard-sub000/internal/dbexec"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

// Operation names accepted by Calls and FailOn.
const (
	OpRunQuery    = "runQuery"
	OpAggregation = "runAggregationQuery"
	OpBatchGet    = "batchGet"
)

// Store implements dbexec.QueryExecutor over documents held in memory.
type Store struct {
	mu       sync.Mutex
	root     string
	docs     map[string]map[string]docvalue.Value
	calls    map[string]int
	failures map[string]error
	batches  [][]string
	// RawCount, when set, replaces the aggregateFields.count payload.
	RawCount json.RawMessage
}

// New returns an empty store rooted at the given project's default database.
func New(projectID string) *Store {
	return &Store{
		root:     docvalue.DocumentsRoot(projectID, ""),
		docs:     map[string]map[string]docvalue.Value{},
		calls:    map[string]int{},
		failures: map[string]error{},
	}
}

// Root returns the fully-qualified documents root.
func (s *Store) Root() string { return s.root }

// Put stores a document at a relative path, encoding plain Go values.
func (s *Store) Put(path string, fields map[string]any) {
	encoded := make(map[string]docvalue.Value, len(fields))
	for k, v := range fields {
		encoded[k] = docvalue.MustEncode(v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[strings.Trim(path, "/")] = encoded
}

// FailOn makes every subsequent call of op return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Batches returns the relative paths requested by each batchGet call.
func (s *Store) Batches() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.batches)
}

func (s *Store) begin(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.failures[op]
}

func (s *Store) RunQuery(ctx context.Context, req planner.QueryRequest) ([]docvalue.Document, error) {
	if err := s.begin(OpRunQuery); err != nil {
		return nil, err
	}
	paths, err := s.evaluate(req.Parent, req.StructuredQuery, true)
	if err != nil {
		return nil, err
	}
	var mask []string
	if req.StructuredQuery.Select != nil {
		for _, f := range req.StructuredQuery.Select.Fields {
			mask = append(mask, f.FieldPath)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]docvalue.Document, 0, len(paths))
	for _, path := range paths {
		docs = append(docs, s.document(path, mask))
	}
	return docs, nil
}

func (s *Store) RunAggregationQuery(ctx context.Context, req planner.AggregationRequest) ([]dbexec.AggregationResult, error) {
	if err := s.begin(OpAggregation); err != nil {
		return nil, err
	}
	q := req.StructuredAggregationQuery
	paths, err := s.evaluate(req.Parent, q.StructuredQuery, false)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	for _, agg := range q.Aggregations {
		if s.RawCount != nil {
			fields[agg.Alias] = s.RawCount
			continue
		}
		fields[agg.Alias] = json.RawMessage(`{"integerValue":"` + strconv.Itoa(len(paths)) + `"}`)
	}
	return []dbexec.AggregationResult{{AggregateFields: fields}}, nil
}

// BatchGet answers in reverse request order, since the backend guarantees no order.
func (s *Store) BatchGet(ctx context.Context, req dbexec.BatchGetRequest) ([]dbexec.BatchGetResult, error) {
	if err := s.begin(OpBatchGet); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, slices.Clone(req.Documents))
	out := make([]dbexec.BatchGetResult, 0, len(req.Documents))
	for i := len(req.Documents) - 1; i >= 0; i-- {
		path := strings.Trim(req.Documents[i], "/")
		if _, ok := s.docs[path]; !ok {
			out = append(out, dbexec.BatchGetResult{Missing: docvalue.FullPath(s.root, path)})
			continue
		}
		doc := s.document(path, req.Mask)
		out = append(out, dbexec.BatchGetResult{Found: &doc})
	}
	return out, nil
}

func (s *Store) document(path string, mask []string) docvalue.Document {
	fields := s.docs[path]
	if len(mask) > 0 {
		masked := make(map[string]docvalue.Value, len(mask))
		for _, f := range mask {
			top := strings.SplitN(f, ".", 2)[0]
			if v, ok := fields[top]; ok {
				masked[top] = v
			}
		}
		fields = masked
	}
	return docvalue.Document{Name: docvalue.FullPath(s.root, path), Fields: fields}
}

func (s *Store) evaluate(parent string, q planner.StructuredQuery, paged bool) ([]string, error) {
	if len(q.From) != 1 {
		return nil, fmt.Errorf("query must select exactly one collection")
	}
	from := q.From[0]
	parent = strings.Trim(parent, "/")

	s.mu.Lock()
	type candidate struct {
		path string
		rec  docvalue.Record
	}
	var matched []candidate
	for path, fields := range s.docs {
		name, err := docvalue.ParseName(path)
		if err != nil || name.Collection != from.CollectionID {
			continue
		}
		if from.AllDescendants {
			if parent != "" && !strings.HasPrefix(name.Parent+"/", parent+"/") {
				continue
			}
		} else if name.Parent != parent {
			continue
		}
		rec := docvalue.Record(docvalue.DecodeFields(fields))
		ok, err := matches(q.Where, rec)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if ok {
			matched = append(matched, candidate{path: path, rec: rec})
		}
	}
	s.mu.Unlock()

	// Documents missing an order field are excluded, as the backend does.
	matched = slices.DeleteFunc(matched, func(c candidate) bool {
		for _, o := range q.OrderBy {
			if !c.rec.Has(o.Field.FieldPath) {
				return true
			}
		}
		return false
	})
	slices.SortFunc(matched, func(a, b candidate) int {
		for _, o := range q.OrderBy {
			va, _ := a.rec.Get(o.Field.FieldPath)
			vb, _ := b.rec.Get(o.Field.FieldPath)
			c := docvalue.Compare(va, vb)
			if o.Direction == planner.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.path, b.path)
	})

	if paged {
		start := min(q.Offset, len(matched))
		matched = matched[start:]
		if q.Limit != nil && *q.Limit < len(matched) {
			matched = matched[:*q.Limit]
		}
	}
	out := make([]string, len(matched))
	for i, c := range matched {
		out[i] = c.path
	}
	return out, nil
}

func matches(f *planner.Filter, rec docvalue.Record) (bool, error) {
	for _, ff := range f.FieldFilters() {
		switch ff.Op {
		case planner.OpEqual, planner.OpGreaterThanOrEqual, planner.OpLessThanOrEqual,
			planner.OpArrayContains, planner.OpArrayContainsAny, planner.OpIn:
		default:
			return false, fmt.Errorf("unsupported operator %q", ff.Op)
		}
	}
	return f.Matches(rec), nil
}
