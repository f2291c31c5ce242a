package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "levante-dashboard"

// StoreMetrics instruments calls to the document store. All methods are
// no-ops on a nil receiver.
type StoreMetrics struct {
	requestDuration  metric.Float64Histogram
	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	batchChunkSize   metric.Int64Histogram
	documentsFound   metric.Int64Counter
	documentsMissing metric.Int64Counter
	cacheHits        metric.Int64Counter
	cacheMisses      metric.Int64Counter
}

// InitStoreMetrics creates the document store instruments on the global meter provider.
func InitStoreMetrics() (*StoreMetrics, error) {
	meter := otel.Meter(meterName + "/docstore")

	requestDuration, err := meter.Float64Histogram(
		"docstore.request.duration",
		metric.WithDescription("Duration of document store requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"docstore.requests.total",
		metric.WithDescription("Total number of document store requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"docstore.errors.total",
		metric.WithDescription("Total number of failed document store requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	batchChunkSize, err := meter.Int64Histogram(
		"docstore.batch.chunk_size",
		metric.WithDescription("Number of documents requested per batchGet call"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch chunk size histogram: %w", err)
	}

	documentsFound, err := meter.Int64Counter(
		"docstore.batch.found",
		metric.WithDescription("Number of documents found by batchGet"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents found counter: %w", err)
	}

	documentsMissing, err := meter.Int64Counter(
		"docstore.batch.missing",
		metric.WithDescription("Number of documents reported missing by batchGet"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents missing counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"docstore.cache.hits",
		metric.WithDescription("Number of documents served from the document cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"docstore.cache.misses",
		metric.WithDescription("Number of documents not found in the document cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	return &StoreMetrics{
		requestDuration:  requestDuration,
		requestCounter:   requestCounter,
		errorCounter:     errorCounter,
		batchChunkSize:   batchChunkSize,
		documentsFound:   documentsFound,
		documentsMissing: documentsMissing,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
	}, nil
}

// RecordRequest records one store call with its duration and outcome.
func (m *StoreMetrics) RecordRequest(ctx context.Context, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("has_errors", err != nil),
	}
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}
}

func (m *StoreMetrics) RecordBatchChunk(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.batchChunkSize.Record(ctx, int64(size))
}

func (m *StoreMetrics) RecordBatchResult(ctx context.Context, found, missing int) {
	if m == nil {
		return
	}
	m.documentsFound.Add(ctx, int64(found))
	m.documentsMissing.Add(ctx, int64(missing))
}

func (m *StoreMetrics) RecordCache(ctx context.Context, collection string, hits, misses int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("collection", collection))
	if hits > 0 {
		m.cacheHits.Add(ctx, int64(hits), attrs)
	}
	if misses > 0 {
		m.cacheMisses.Add(ctx, int64(misses), attrs)
	}
}

// QueryMetrics instruments the dashboard read operations. All methods are
// no-ops on a nil receiver.
type QueryMetrics struct {
	operationDuration metric.Float64Histogram
	dispatchCounter   metric.Int64Counter
	resultsCount      metric.Int64Histogram
	accessibleIDs     metric.Int64Histogram
	malformedCounts   metric.Int64Counter
	enrichmentMissing metric.Int64Counter
}

// InitQueryMetrics creates the read-operation instruments on the global meter provider.
func InitQueryMetrics() (*QueryMetrics, error) {
	meter := otel.Meter(meterName + "/query")

	operationDuration, err := meter.Float64Histogram(
		"dashboard.operation.duration",
		metric.WithDescription("Duration of dashboard read operations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	dispatchCounter, err := meter.Int64Counter(
		"dashboard.dispatch.total",
		metric.WithDescription("Read operations by dispatch path (unrestricted or scoped)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch counter: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"dashboard.results.count",
		metric.WithDescription("Number of records returned by read operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	accessibleIDs, err := meter.Int64Histogram(
		"dashboard.access.accessible_ids",
		metric.WithDescription("Number of org ids resolved as accessible for a scoped caller"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create accessible ids histogram: %w", err)
	}

	malformedCounts, err := meter.Int64Counter(
		"dashboard.aggregation.malformed",
		metric.WithDescription("Count responses that could not be parsed and were treated as zero"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create malformed counts counter: %w", err)
	}

	enrichmentMissing, err := meter.Int64Counter(
		"dashboard.enrichment.missing",
		metric.WithDescription("Related documents absent during enrichment"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment missing counter: %w", err)
	}

	return &QueryMetrics{
		operationDuration: operationDuration,
		dispatchCounter:   dispatchCounter,
		resultsCount:      resultsCount,
		accessibleIDs:     accessibleIDs,
		malformedCounts:   malformedCounts,
		enrichmentMissing: enrichmentMissing,
	}, nil
}

// RecordOperation records a read operation, its dispatch path and result size.
func (m *QueryMetrics) RecordOperation(ctx context.Context, operation string, scoped bool, duration time.Duration, results int, err error) {
	if m == nil {
		return
	}
	path := "unrestricted"
	if scoped {
		path = "scoped"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("dispatch", path),
		attribute.Bool("has_errors", err != nil),
	)
	m.operationDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.dispatchCounter.Add(ctx, 1, attrs)
	if err == nil {
		m.resultsCount.Record(ctx, int64(results), metric.WithAttributes(attribute.String("operation", operation)))
	}
}

func (m *QueryMetrics) RecordAccessibleIDs(ctx context.Context, orgType string, n int) {
	if m == nil {
		return
	}
	m.accessibleIDs.Record(ctx, int64(n), metric.WithAttributes(attribute.String("org_type", orgType)))
}

func (m *QueryMetrics) RecordMalformedCount(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.malformedCounts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *QueryMetrics) RecordEnrichmentMissing(ctx context.Context, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.enrichmentMissing.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// InitMetrics initializes the custom instruments.
func InitMetrics(logger *slog.Logger) (*StoreMetrics, *QueryMetrics, error) {
	store, err := InitStoreMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize document store metrics: %w", err)
	}
	query, err := InitQueryMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}
	logger.Info("custom dashboard metrics initialized")
	return store, query, nil
}
