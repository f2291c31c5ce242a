// Package doccache is a read-through Redis cache in front of batchGet for
// the org collections hierarchy resolution reads. Queries are never cached.
package doccache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/levante-framework/levante-dashboard-sub000/internal/dbexec"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
	"github.com/levante-framework/levante-dashboard-sub000/internal/observability"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

const (
	DefaultTTL    = 5 * time.Minute
	DefaultPrefix = "levante:doc:"
)

// DefaultCollections are the org collections cached when none are configured.
var DefaultCollections = []string{"districts", "schools", "classes", "groups", "families"}

// KV is the subset of the Redis client the cache uses.
type KV interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Config controls what is cached and for how long.
type Config struct {
	TTL         time.Duration
	Prefix      string
	Collections []string
}

// Executor caches found documents of the configured collections. Missing
// documents are not cached. Redis failures are logged and fall through to
// the backend.
type Executor struct {
	next        dbexec.QueryExecutor
	kv          KV
	ttl         time.Duration
	prefix      string
	collections map[string]bool
	metrics     *observability.StoreMetrics
}

// New wraps next with a cache backed by kv. metrics may be nil.
func New(next dbexec.QueryExecutor, kv KV, cfg Config, metrics *observability.StoreMetrics) *Executor {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = DefaultCollections
	}
	collections := make(map[string]bool, len(cfg.Collections))
	for _, c := range cfg.Collections {
		collections[c] = true
	}
	return &Executor{
		next:        next,
		kv:          kv,
		ttl:         cfg.TTL,
		prefix:      cfg.Prefix,
		collections: collections,
		metrics:     metrics,
	}
}

// NewClient opens a Redis client and checks that it answers.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (e *Executor) RunQuery(ctx context.Context, req planner.QueryRequest) ([]docvalue.Document, error) {
	return e.next.RunQuery(ctx, req)
}

func (e *Executor) RunAggregationQuery(ctx context.Context, req planner.AggregationRequest) ([]dbexec.AggregationResult, error) {
	return e.next.RunAggregationQuery(ctx, req)
}

// BatchGet serves cacheable documents from Redis and fetches the rest.
func (e *Executor) BatchGet(ctx context.Context, req dbexec.BatchGetRequest) ([]dbexec.BatchGetResult, error) {
	var cacheable []string
	for _, path := range req.Documents {
		if e.cacheable(path) {
			cacheable = append(cacheable, path)
		}
	}
	if len(cacheable) == 0 {
		return e.next.BatchGet(ctx, req)
	}

	maskKey := maskSuffix(req.Mask)
	hits := e.lookup(ctx, cacheable, maskKey)

	var remaining []string
	for _, path := range req.Documents {
		if _, ok := hits[path]; !ok {
			remaining = append(remaining, path)
		}
	}
	e.recordLookup(ctx, cacheable, hits)

	out := make([]dbexec.BatchGetResult, 0, len(req.Documents))
	for _, doc := range hits {
		out = append(out, dbexec.BatchGetResult{Found: doc})
	}
	if len(remaining) == 0 {
		return out, nil
	}

	fetched, err := e.next.BatchGet(ctx, dbexec.BatchGetRequest{Documents: remaining, Mask: req.Mask})
	if err != nil {
		return nil, err
	}
	for _, res := range fetched {
		if res.Found != nil {
			e.store(ctx, res.Found, maskKey)
		}
	}
	return append(out, fetched...), nil
}

func (e *Executor) cacheable(path string) bool {
	name, err := docvalue.ParseName(path)
	return err == nil && e.collections[name.Collection]
}

func (e *Executor) key(path, maskKey string) string {
	return e.prefix + path + "|" + maskKey
}

func (e *Executor) lookup(ctx context.Context, paths []string, maskKey string) map[string]*docvalue.Document {
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = e.key(p, maskKey)
	}
	values, err := e.kv.MGet(ctx, keys...).Result()
	if err != nil {
		logging.FromContext(ctx).Warn("document cache lookup failed", slog.String("error", err.Error()))
		return map[string]*docvalue.Document{}
	}

	hits := make(map[string]*docvalue.Document, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok || i >= len(paths) {
			continue
		}
		var doc docvalue.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			logging.FromContext(ctx).Warn("discarding unreadable cache entry",
				slog.String("key", keys[i]),
				slog.String("error", err.Error()),
			)
			continue
		}
		hits[paths[i]] = &doc
	}
	return hits
}

func (e *Executor) recordLookup(ctx context.Context, paths []string, hits map[string]*docvalue.Document) {
	type tally struct{ hits, misses int }
	counts := map[string]*tally{}
	for _, p := range paths {
		name, _ := docvalue.ParseName(p)
		c := counts[name.Collection]
		if c == nil {
			c = &tally{}
			counts[name.Collection] = c
		}
		if _, ok := hits[p]; ok {
			c.hits++
		} else {
			c.misses++
		}
	}
	for collection, c := range counts {
		e.metrics.RecordCache(ctx, collection, c.hits, c.misses)
	}
}

func (e *Executor) store(ctx context.Context, doc *docvalue.Document, maskKey string) {
	name, err := docvalue.ParseName(doc.Name)
	if err != nil || !e.collections[name.Collection] {
		return
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := e.kv.Set(ctx, e.key(name.Path, maskKey), payload, e.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("document cache write failed",
			slog.String("path", name.Path),
			slog.String("error", err.Error()),
		)
	}
}

func maskSuffix(mask []string) string {
	if len(mask) == 0 {
		return "*"
	}
	sorted := slices.Clone(mask)
	slices.Sort(sorted)
	return strings.Join(slices.Compact(sorted), ",")
}
