// Package planner builds document store structured queries and their count
// aggregation counterparts from domain parameters.
//
// Each builder produces a Request holding either a runQuery body or a
// runAggregationQuery body. Both variants are derived from one
// StructuredQuery, so a count and the page fetch built from the same
// parameters always share an identical filter tree.
package planner

import (
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
)

// Operator is a field filter operator.
type Operator string

const (
	OpEqual              Operator = "EQUAL"
	OpArrayContains      Operator = "ARRAY_CONTAINS"
	OpArrayContainsAny   Operator = "ARRAY_CONTAINS_ANY"
	OpIn                 Operator = "IN"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"
)

// CompositeOp combines filters.
type CompositeOp string

const (
	CompositeAnd CompositeOp = "AND"
	CompositeOr  CompositeOp = "OR"
)

type FieldReference struct {
	FieldPath string `json:"fieldPath"`
}

type Projection struct {
	Fields []FieldReference `json:"fields"`
}

type CollectionSelector struct {
	CollectionID   string `json:"collectionId"`
	AllDescendants bool   `json:"allDescendants,omitempty"`
}

type FieldFilter struct {
	Field FieldReference `json:"field"`
	Op    Operator       `json:"op"`
	Value docvalue.Value `json:"value"`
}

type CompositeFilter struct {
	Op      CompositeOp `json:"op"`
	Filters []Filter    `json:"filters"`
}

// Filter is a field or composite filter; exactly one member is set.
type Filter struct {
	CompositeFilter *CompositeFilter `json:"compositeFilter,omitempty"`
	FieldFilter     *FieldFilter     `json:"fieldFilter,omitempty"`
}

type Order struct {
	Field     FieldReference `json:"field"`
	Direction Direction      `json:"direction"`
}

// StructuredQuery is the store's JSON query representation.
type StructuredQuery struct {
	Select  *Projection          `json:"select,omitempty"`
	From    []CollectionSelector `json:"from"`
	Where   *Filter              `json:"where,omitempty"`
	OrderBy []Order              `json:"orderBy,omitempty"`
	Offset  int                  `json:"offset,omitempty"`
	Limit   *int                 `json:"limit,omitempty"`
}

// QueryRequest is the body of a runQuery call. Parent is the document path,
// relative to the documents root, under which the query runs; empty for the root.
type QueryRequest struct {
	Parent          string          `json:"-"`
	StructuredQuery StructuredQuery `json:"structuredQuery"`
}

// Request carries exactly one of Query or Aggregation.
type Request struct {
	Query       *QueryRequest
	Aggregation *AggregationRequest
}

// Field builds a field filter.
func Field(path string, op Operator, value docvalue.Value) FieldFilter {
	return FieldFilter{Field: FieldReference{FieldPath: path}, Op: op, Value: value}
}

func Eq(path string, value docvalue.Value) FieldFilter {
	return Field(path, OpEqual, value)
}

func ArrayContains(path, value string) FieldFilter {
	return Field(path, OpArrayContains, docvalue.String(value))
}

func ArrayContainsAny(path string, values []string) FieldFilter {
	return Field(path, OpArrayContainsAny, docvalue.Strings(values...))
}

func In(path string, values []string) FieldFilter {
	return Field(path, OpIn, docvalue.Strings(values...))
}

// Wrap lifts a field filter into a Filter.
func (f FieldFilter) Wrap() Filter {
	ff := f
	return Filter{FieldFilter: &ff}
}

// Combine joins filters under op. No filters yields nil and a single filter
// is returned unwrapped.
func Combine(op CompositeOp, filters ...Filter) *Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		f := filters[0]
		return &f
	}
	return &Filter{CompositeFilter: &CompositeFilter{Op: op, Filters: filters}}
}

// And combines field filters with AND.
func And(filters ...FieldFilter) *Filter {
	wrapped := make([]Filter, len(filters))
	for i, f := range filters {
		wrapped[i] = f.Wrap()
	}
	return Combine(CompositeAnd, wrapped...)
}

// FieldFilters flattens the filter tree into its field filters, depth first.
func (f *Filter) FieldFilters() []FieldFilter {
	if f == nil {
		return nil
	}
	if f.FieldFilter != nil {
		return []FieldFilter{*f.FieldFilter}
	}
	var out []FieldFilter
	if f.CompositeFilter != nil {
		for i := range f.CompositeFilter.Filters {
			out = append(out, f.CompositeFilter.Filters[i].FieldFilters()...)
		}
	}
	return out
}

func projection(fields []string) *Projection {
	if len(fields) == 0 {
		return nil
	}
	refs := make([]FieldReference, len(fields))
	for i, f := range fields {
		refs[i] = FieldReference{FieldPath: f}
	}
	return &Projection{Fields: refs}
}

func from(collection string, allDescendants bool) []CollectionSelector {
	return []CollectionSelector{{CollectionID: collection, AllDescendants: allDescendants}}
}
