// Package dbexec executes structured queries, count aggregations and batch
// document reads against the document store.
package dbexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

// ErrNotConfigured is returned when the executor has no store to talk to.
var ErrNotConfigured = errors.New("document store is not configured")

// ErrMalformedCount is returned when an aggregation response does not carry
// a readable integer count.
var ErrMalformedCount = errors.New("malformed aggregation count")

// BatchGetRequest names documents by path relative to the documents root.
type BatchGetRequest struct {
	Documents []string
	// Mask restricts the returned fields. Empty returns whole documents.
	Mask []string
}

// BatchGetResult carries exactly one of Found or Missing.
type BatchGetResult struct {
	Found *docvalue.Document
	// Missing is the fully-qualified name of a document that does not exist.
	Missing string
}

// AggregationResult is one entry of a runAggregationQuery response.
type AggregationResult struct {
	AggregateFields map[string]json.RawMessage
	ReadTime        string
}

// QueryExecutor abstracts store access so callers can swap in caching or
// instrumented behavior.
type QueryExecutor interface {
	RunQuery(ctx context.Context, req planner.QueryRequest) ([]docvalue.Document, error)
	RunAggregationQuery(ctx context.Context, req planner.AggregationRequest) ([]AggregationResult, error)
	BatchGet(ctx context.Context, req BatchGetRequest) ([]BatchGetResult, error)
}

// Count reads the integer aggregate stored under alias.
func (r AggregationResult) Count(alias string) (int64, error) {
	raw, ok := r.AggregateFields[alias]
	if !ok {
		return 0, fmt.Errorf("%w: alias %q not present", ErrMalformedCount, alias)
	}
	var v docvalue.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedCount, err)
	}
	switch decoded := docvalue.Decode(v).(type) {
	case int64:
		return decoded, nil
	case float64:
		return int64(decoded), nil
	case string:
		n, err := strconv.ParseInt(decoded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedCount, decoded)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unexpected %s value", ErrMalformedCount, v.Kind())
	}
}

// CountFrom reads the count from the first aggregation result.
func CountFrom(results []AggregationResult, alias string) (int64, error) {
	if len(results) == 0 {
		return 0, fmt.Errorf("%w: empty response", ErrMalformedCount)
	}
	return results[0].Count(alias)
}

// Documents returns the found documents in response order.
func Documents(results []BatchGetResult) []docvalue.Document {
	out := make([]docvalue.Document, 0, len(results))
	for _, r := range results {
		if r.Found != nil {
			out = append(out, *r.Found)
		}
	}
	return out
}
