package docvalue

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

const (
	FieldID        = "id"
	FieldParentDoc = "parentDoc"
)

// Record is a decoded document: plain field values plus "id" and, for
// subcollection documents, optionally "parentDoc".
type Record map[string]any

// MarshalJSON encodes the record with NaN and infinite doubles as null,
// which plain JSON cannot represent.
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return json.Marshal(JSONSafe(map[string]any(r)))
}

// JSONSafe returns v with every non-finite float64 replaced by nil, walking
// nested maps and slices. Other values are returned unchanged.
func JSONSafe(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case Record:
		return JSONSafe(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = JSONSafe(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = JSONSafe(e)
		}
		return out
	default:
		return v
	}
}

func (r Record) ID() string       { return r.String(FieldID) }
func (r Record) ParentID() string { return r.String(FieldParentDoc) }

// Get resolves a dot-separated field path through nested maps.
func (r Record) Get(path string) (any, bool) {
	if r == nil {
		return nil, false
	}
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether the field path is present, even if its value is null.
func (r Record) Has(path string) bool {
	_, ok := r.Get(path)
	return ok
}

func (r Record) String(path string) string {
	v, _ := r.Get(path)
	s, _ := v.(string)
	return s
}

func (r Record) Bool(path string) bool {
	v, _ := r.Get(path)
	b, _ := v.(bool)
	return b
}

func (r Record) Time(path string) (time.Time, bool) {
	v, _ := r.Get(path)
	t, ok := v.(time.Time)
	return t, ok
}

// Strings returns the string elements of an array field, skipping anything else.
func (r Record) Strings(path string) []string {
	v, _ := r.Get(path)
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Map returns a nested map field.
func (r Record) Map(path string) map[string]any {
	v, _ := r.Get(path)
	m, _ := v.(map[string]any)
	return m
}

// Number returns a numeric field as float64.
func (r Record) Number(path string) (float64, bool) {
	v, _ := r.Get(path)
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}
