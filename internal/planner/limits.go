package planner

const (
	// DefaultPageLimit applies when a caller asks for a page without a size.
	DefaultPageLimit = 25
	// MaxPageLimit caps the page size accepted from callers.
	MaxPageLimit = 1000
	// MaxDisjunctionValues is the store's limit on values across IN,
	// ARRAY_CONTAINS_ANY and OR disjunctions in a single query.
	MaxDisjunctionValues = 30
)

// Page selects a window of results. A Limit of zero or less means unlimited.
type Page struct {
	Limit int
	Index int
}

// Offset is the number of results skipped before the window.
func (p Page) Offset() int {
	if p.Limit <= 0 || p.Index <= 0 {
		return 0
	}
	return p.Limit * p.Index
}

// Bounds returns the slice bounds [start, end) of the window over n items.
func (p Page) Bounds(n int) (int, int) {
	if p.Limit <= 0 {
		return 0, n
	}
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}

func (p Page) apply(q *StructuredQuery) {
	if p.Limit <= 0 {
		return
	}
	limit := p.Limit
	q.Limit = &limit
	q.Offset = p.Offset()
}
