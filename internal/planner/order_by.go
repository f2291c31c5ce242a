package planner

import (
	"fmt"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ASCENDING"
	Descending Direction = "DESCENDING"
)

// OrderBy describes one ordering key.
type OrderBy struct {
	Field     string
	Direction Direction
}

// ParseDirection accepts ASCENDING/DESCENDING or ASC/DESC in any case. An
// empty string means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC", string(Ascending):
		return Ascending, nil
	case "DESC", string(Descending):
		return Descending, nil
	}
	return "", fmt.Errorf("orderBy direction must be ASC or DESC")
}

// ParseOrderBy validates a single field/direction pair. An empty field
// yields nil so callers fall back to their default ordering.
func ParseOrderBy(field, direction string) ([]OrderBy, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, nil
	}
	if strings.ContainsAny(field, " `") || strings.HasPrefix(field, ".") || strings.HasSuffix(field, ".") {
		return nil, fmt.Errorf("invalid orderBy field %q", field)
	}
	dir, err := ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	return []OrderBy{{Field: field, Direction: dir}}, nil
}

func orders(orderBy []OrderBy, fallback []OrderBy) []Order {
	if len(orderBy) == 0 {
		orderBy = fallback
	}
	if len(orderBy) == 0 {
		return nil
	}
	out := make([]Order, len(orderBy))
	for i, o := range orderBy {
		dir := o.Direction
		if dir == "" {
			dir = Ascending
		}
		out[i] = Order{Field: FieldReference{FieldPath: o.Field}, Direction: dir}
	}
	return out
}

// OrderFields returns the field paths used by the orderings.
func OrderFields(orderBy []OrderBy) []string {
	out := make([]string, 0, len(orderBy))
	for _, o := range orderBy {
		out = append(out, o.Field)
	}
	return out
}
