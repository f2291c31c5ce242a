package planner

import (
	"slices"
	"strings"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
)

// Matches evaluates the filter against a decoded record the way the store
// does: a missing field never matches.
func (f FieldFilter) Matches(rec docvalue.Record) bool {
	got, present := rec.Get(f.Field.FieldPath)
	if !present {
		return false
	}
	want := docvalue.Decode(f.Value)
	switch f.Op {
	case OpEqual:
		return docvalue.Equal(got, want)
	case OpGreaterThanOrEqual:
		return docvalue.Comparable(got, want) && docvalue.Compare(got, want) >= 0
	case OpLessThanOrEqual:
		return docvalue.Comparable(got, want) && docvalue.Compare(got, want) <= 0
	case OpArrayContains:
		items, _ := got.([]any)
		return containsValue(items, want)
	case OpArrayContainsAny:
		items, _ := got.([]any)
		candidates, _ := want.([]any)
		for _, c := range candidates {
			if containsValue(items, c) {
				return true
			}
		}
		return false
	case OpIn:
		candidates, _ := want.([]any)
		return containsValue(candidates, got)
	}
	return false
}

// Matches evaluates a filter tree. A nil filter matches everything.
func (f *Filter) Matches(rec docvalue.Record) bool {
	if f == nil {
		return true
	}
	if f.FieldFilter != nil {
		return f.FieldFilter.Matches(rec)
	}
	if f.CompositeFilter == nil {
		return false
	}
	switch f.CompositeFilter.Op {
	case CompositeAnd:
		for i := range f.CompositeFilter.Filters {
			if !f.CompositeFilter.Filters[i].Matches(rec) {
				return false
			}
		}
		return true
	case CompositeOr:
		for i := range f.CompositeFilter.Filters {
			if f.CompositeFilter.Filters[i].Matches(rec) {
				return true
			}
		}
	}
	return false
}

func containsValue(items []any, want any) bool {
	return slices.ContainsFunc(items, func(item any) bool { return docvalue.Equal(item, want) })
}

// EffectiveOrder returns orderBy, or fallback when orderBy is empty.
func EffectiveOrder(orderBy, fallback []OrderBy) []OrderBy {
	if len(orderBy) == 0 {
		return fallback
	}
	return orderBy
}

// CompareRecords orders records by the given keys. A record missing a key
// sorts after one that has it in either direction; remaining ties break on id.
func CompareRecords(a, b docvalue.Record, orderBy []OrderBy) int {
	for _, o := range orderBy {
		va, okA := a.Get(o.Field)
		vb, okB := b.Get(o.Field)
		switch {
		case !okA && !okB:
			continue
		case !okA:
			return 1
		case !okB:
			return -1
		}
		c := docvalue.Compare(va, vb)
		if o.Direction == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return strings.Compare(a.ID(), b.ID())
}

// SortRecords sorts in place with CompareRecords.
func SortRecords(recs []docvalue.Record, orderBy []OrderBy) {
	slices.SortStableFunc(recs, func(a, b docvalue.Record) int {
		return CompareRecords(a, b, orderBy)
	})
}
