// Package resolver serves the dashboard read operations. Each operation
// dispatches on the caller's permissions: super admins get one store-side
// query with backend ordering and paging, everyone else gets their
// accessible ids resolved first and the page assembled client-side.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/levante-framework/levante-dashboard-sub000/internal/access"
	"github.com/levante-framework/levante-dashboard-sub000/internal/batchget"
	"github.com/levante-framework/levante-dashboard-sub000/internal/dbexec"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
	"github.com/levante-framework/levante-dashboard-sub000/internal/observability"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

// ErrInvalidID is returned for a document id that is empty or contains a
// path separator, which would address a different document.
var ErrInvalidID = errors.New("invalid document id")

func checkIDs(kind string, ids ...string) error {
	for _, id := range ids {
		if id == "" || strings.Contains(id, "/") {
			return fmt.Errorf("%w: %s %q", ErrInvalidID, kind, id)
		}
	}
	return nil
}

// Resolver runs read operations against one document store.
type Resolver struct {
	exec     dbexec.QueryExecutor
	docs     *batchget.Fetcher
	access   *access.Resolver
	enricher *Enricher
	metrics  *observability.QueryMetrics
}

// Config wires a Resolver.
type Config struct {
	Executor dbexec.QueryExecutor
	// ChunkSize bounds documents per batchGet call; zero uses batchget.DefaultChunkSize.
	ChunkSize int
	Metrics   *observability.QueryMetrics
}

// New builds a Resolver and its batch fetcher, hierarchy resolver and enricher.
func New(cfg Config) (*Resolver, error) {
	if cfg.Executor == nil {
		return nil, dbexec.ErrNotConfigured
	}
	docs := batchget.New(cfg.Executor, batchget.WithChunkSize(cfg.ChunkSize), batchget.WithParentIDs())
	return &Resolver{
		exec:     cfg.Executor,
		docs:     docs,
		access:   access.NewResolver(docs, cfg.Metrics),
		enricher: NewEnricher(cfg.Executor, docs, cfg.Metrics),
		metrics:  cfg.Metrics,
	}, nil
}

// Access exposes the hierarchy resolver.
func (r *Resolver) Access() *access.Resolver { return r.access }

// Documents exposes the batch fetcher.
func (r *Resolver) Documents() *batchget.Fetcher { return r.docs }

// Ping runs a one-document query to check that the store answers.
func (r *Resolver) Ping(ctx context.Context) error {
	limit := 1
	_, err := r.exec.RunQuery(ctx, planner.QueryRequest{StructuredQuery: planner.StructuredQuery{
		From:  []planner.CollectionSelector{{CollectionID: "districts"}},
		Limit: &limit,
	}})
	return err
}

func (r *Resolver) query(ctx context.Context, req planner.Request) ([]docvalue.Record, error) {
	if req.Query == nil {
		return nil, fmt.Errorf("request carries no query")
	}
	docs, err := r.exec.RunQuery(ctx, *req.Query)
	if err != nil {
		return nil, err
	}
	return docvalue.DecodeDocuments(docs, true), nil
}

// count runs an aggregation. A response without a readable count is logged
// and treated as zero; store failures propagate.
func (r *Resolver) count(ctx context.Context, operation string, req planner.Request) (int64, error) {
	if req.Aggregation == nil {
		return 0, fmt.Errorf("request carries no aggregation")
	}
	results, err := r.exec.RunAggregationQuery(ctx, *req.Aggregation)
	if err != nil {
		return 0, err
	}
	n, err := dbexec.CountFrom(results, planner.CountAlias)
	if errors.Is(err, dbexec.ErrMalformedCount) {
		logging.FromContext(ctx).Warn("treating malformed count as zero",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		r.metrics.RecordMalformedCount(ctx, operation)
		return 0, nil
	}
	return n, err
}

// page sorts records client-side and slices out the requested window.
func page(recs []docvalue.Record, orderBy []planner.OrderBy, p planner.Page) []docvalue.Record {
	planner.SortRecords(recs, orderBy)
	start, end := p.Bounds(len(recs))
	return recs[start:end]
}

func (r *Resolver) observe(ctx context.Context, operation string, scoped bool, started time.Time, results int, err error) {
	r.metrics.RecordOperation(ctx, operation, scoped, time.Since(started), results, err)
}
