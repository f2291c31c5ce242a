// Package setutil provides the small string-set algebra used when expanding
// org grants: union, intersection and order-preserving de-duplication.
package setutil

import "sort"

// Set is an unordered set of ids.
type Set map[string]struct{}

// New builds a set from the non-empty values.
func New(values ...string) Set {
	s := make(Set, len(values))
	s.Add(values...)
	return s
}

// Add inserts the non-empty values.
func (s Set) Add(values ...string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
}

func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s Set) Len() int { return len(s) }

// Union returns a new set with the members of s and every other set.
func (s Set) Union(others ...Set) Set {
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	for _, o := range others {
		for v := range o {
			out[v] = struct{}{}
		}
	}
	return out
}

// Intersect returns the members of s also present in other.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for v := range s {
		if other.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Dedupe removes empty and repeated values, keeping first occurrences in order.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FilterOrdered keeps the values of ordered that are members of allowed,
// preserving the order of ordered and dropping repeats.
func FilterOrdered(ordered []string, allowed Set) []string {
	out := make([]string, 0, len(ordered))
	for _, v := range Dedupe(ordered) {
		if allowed.Has(v) {
			out = append(out, v)
		}
	}
	return out
}
