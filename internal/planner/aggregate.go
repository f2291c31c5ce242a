package planner

// CountAlias is the alias under which count aggregations are returned.
const CountAlias = "count"

type CountAggregation struct{}

type Aggregation struct {
	Alias string            `json:"alias"`
	Count *CountAggregation `json:"count,omitempty"`
}

type StructuredAggregationQuery struct {
	StructuredQuery StructuredQuery `json:"structuredQuery"`
	Aggregations    []Aggregation   `json:"aggregations"`
}

// AggregationRequest is the body of a runAggregationQuery call.
type AggregationRequest struct {
	Parent                     string                     `json:"-"`
	StructuredAggregationQuery StructuredAggregationQuery `json:"structuredAggregationQuery"`
}

// CountOf wraps a base query in a count aggregation. Select, limit and
// offset are dropped; the filter tree and ordering are kept as-is so the
// count covers exactly the documents the base query would return unpaged.
func CountOf(parent string, base StructuredQuery) *AggregationRequest {
	base.Select = nil
	base.Limit = nil
	base.Offset = 0
	return &AggregationRequest{
		Parent: parent,
		StructuredAggregationQuery: StructuredAggregationQuery{
			StructuredQuery: base,
			Aggregations:    []Aggregation{{Alias: CountAlias, Count: &CountAggregation{}}},
		},
	}
}

// finalize turns a fully built query into a fetch or count request.
func finalize(parent string, q StructuredQuery, aggregation bool) Request {
	if aggregation {
		return Request{Aggregation: CountOf(parent, q)}
	}
	return Request{Query: &QueryRequest{Parent: parent, StructuredQuery: q}}
}

// Base returns the structured query carried by either variant.
func (r Request) Base() StructuredQuery {
	if r.Aggregation != nil {
		return r.Aggregation.StructuredAggregationQuery.StructuredQuery
	}
	if r.Query != nil {
		return r.Query.StructuredQuery
	}
	return StructuredQuery{}
}
