package dbexec

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/observability"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

// InstrumentedExecutor wraps another executor with spans and store metrics.
type InstrumentedExecutor struct {
	next    QueryExecutor
	metrics *observability.StoreMetrics
	tracer  trace.Tracer
}

// NewInstrumentedExecutor wraps next. A nil metrics value disables metrics.
func NewInstrumentedExecutor(next QueryExecutor, metrics *observability.StoreMetrics) *InstrumentedExecutor {
	return &InstrumentedExecutor{
		next:    next,
		metrics: metrics,
		tracer:  otel.Tracer("levante-dashboard/dbexec"),
	}
}

func (e *InstrumentedExecutor) RunQuery(ctx context.Context, req planner.QueryRequest) ([]docvalue.Document, error) {
	ctx, span := e.start(ctx, "runQuery", req.StructuredQuery)
	started := time.Now()
	docs, err := e.next.RunQuery(ctx, req)
	e.metrics.RecordRequest(ctx, "runQuery", time.Since(started), err)
	span.SetAttributes(attribute.Int("docstore.result_count", len(docs)))
	finish(span, err)
	return docs, err
}

func (e *InstrumentedExecutor) RunAggregationQuery(ctx context.Context, req planner.AggregationRequest) ([]AggregationResult, error) {
	ctx, span := e.start(ctx, "runAggregationQuery", req.StructuredAggregationQuery.StructuredQuery)
	started := time.Now()
	results, err := e.next.RunAggregationQuery(ctx, req)
	e.metrics.RecordRequest(ctx, "runAggregationQuery", time.Since(started), err)
	finish(span, err)
	return results, err
}

func (e *InstrumentedExecutor) BatchGet(ctx context.Context, req BatchGetRequest) ([]BatchGetResult, error) {
	ctx, span := e.tracer.Start(ctx, "docstore.batchGet")
	span.SetAttributes(attribute.Int("docstore.batch_size", len(req.Documents)))
	e.metrics.RecordBatchChunk(ctx, len(req.Documents))
	started := time.Now()
	results, err := e.next.BatchGet(ctx, req)
	e.metrics.RecordRequest(ctx, "batchGet", time.Since(started), err)
	if err == nil {
		found := len(Documents(results))
		e.metrics.RecordBatchResult(ctx, found, len(results)-found)
		span.SetAttributes(attribute.Int("docstore.found", found))
	}
	finish(span, err)
	return results, err
}

// Close closes the wrapped executor when it holds connections.
func (e *InstrumentedExecutor) Close() error {
	if c, ok := e.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *InstrumentedExecutor) start(ctx context.Context, operation string, q planner.StructuredQuery) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "docstore."+operation)
	if len(q.From) > 0 {
		span.SetAttributes(
			attribute.String("docstore.collection", q.From[0].CollectionID),
			attribute.Bool("docstore.collection_group", q.From[0].AllDescendants),
		)
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
