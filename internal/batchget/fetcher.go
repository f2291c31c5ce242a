// Package batchget resolves document references into decoded records using
// chunked, concurrent batchGet calls.
package batchget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/levante-framework/levante-dashboard-sub000/internal/dbexec"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
	"github.com/levante-framework/levante-dashboard-sub000/internal/setutil"
)

// DefaultChunkSize bounds the number of documents per batchGet call.
const DefaultChunkSize = 100

// Ref names one document. Parent is the relative path of the owning
// document for subcollection references and empty otherwise.
type Ref struct {
	Parent     string
	Collection string
	ID         string
}

// Path returns the reference path relative to the documents root.
func (r Ref) Path() string {
	if r.Parent == "" {
		return r.Collection + "/" + r.ID
	}
	return r.Parent + "/" + r.Collection + "/" + r.ID
}

// Refs builds top-level references to ids in one collection.
func Refs(collection string, ids ...string) []Ref {
	out := make([]Ref, len(ids))
	for i, id := range ids {
		out[i] = Ref{Collection: collection, ID: id}
	}
	return out
}

// Fetcher materializes documents by reference.
type Fetcher struct {
	exec      dbexec.QueryExecutor
	chunkSize int
	// IncludeParentID adds parentDoc to records of subcollection documents.
	includeParentID bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithChunkSize overrides DefaultChunkSize. Values <= 0 are ignored.
func WithChunkSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.chunkSize = n
		}
	}
}

// WithParentIDs records the owning document id as parentDoc.
func WithParentIDs() Option {
	return func(f *Fetcher) { f.includeParentID = true }
}

// New returns a Fetcher over exec.
func New(exec dbexec.QueryExecutor, opts ...Option) *Fetcher {
	f := &Fetcher{exec: exec, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get returns one entry per ref in input order. Missing documents are nil.
// Duplicate refs are fetched once and repeated in the output.
func (f *Fetcher) Get(ctx context.Context, refs []Ref, mask ...string) ([]docvalue.Record, error) {
	byPath, err := f.fetch(ctx, refs, mask)
	if err != nil {
		return nil, err
	}
	out := make([]docvalue.Record, len(refs))
	for i, ref := range refs {
		out[i] = byPath[ref.Path()]
	}
	return out, nil
}

// ByID returns found documents keyed by id. Missing ids are absent. When
// refs from different parents share an id, the last one in input order wins;
// use ByPath to keep them apart.
func (f *Fetcher) ByID(ctx context.Context, refs []Ref, mask ...string) (map[string]docvalue.Record, error) {
	byPath, err := f.fetch(ctx, refs, mask)
	if err != nil {
		return nil, err
	}
	out := make(map[string]docvalue.Record, len(byPath))
	for _, ref := range refs {
		if rec, ok := byPath[ref.Path()]; ok {
			out[ref.ID] = rec
		}
	}
	return out, nil
}

// ByPath returns found documents keyed by relative path.
func (f *Fetcher) ByPath(ctx context.Context, refs []Ref, mask ...string) (map[string]docvalue.Record, error) {
	return f.fetch(ctx, refs, mask)
}

func (f *Fetcher) fetch(ctx context.Context, refs []Ref, mask []string) (map[string]docvalue.Record, error) {
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Collection == "" || ref.ID == "" {
			continue
		}
		paths = append(paths, ref.Path())
	}
	paths = setutil.Dedupe(paths)
	out := make(map[string]docvalue.Record, len(paths))
	if len(paths) == 0 {
		return out, nil
	}

	chunks := chunk(paths, f.chunkSize)
	logging.FromContext(ctx).Debug("batch get",
		slog.Int("documents", len(paths)),
		slog.Int("chunks", len(chunks)),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks {
		g.Go(func() error {
			results, err := f.exec.BatchGet(gctx, dbexec.BatchGetRequest{Documents: c, Mask: mask})
			if err != nil {
				return fmt.Errorf("batch get of %d documents: %w", len(c), err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, result := range results {
				if result.Found == nil {
					continue
				}
				name, err := docvalue.ParseName(result.Found.Name)
				if err != nil {
					continue
				}
				out[name.Path] = docvalue.DecodeDocument(*result.Found, f.includeParentID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func chunk(values []string, size int) [][]string {
	if size <= 0 || len(values) <= size {
		return [][]string{values}
	}
	chunks := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
