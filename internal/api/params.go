package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

// badRequestError marks errors caused by the caller's parameters.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func orgTypeParam(r *http.Request, source string) (model.OrgType, error) {
	var raw string
	if source == "" {
		raw = chi.URLParam(r, "orgType")
	} else {
		raw = r.URL.Query().Get(source)
	}
	if raw == "" {
		return 0, badRequest("org type is required")
	}
	t, err := model.ParseOrgType(raw)
	if err != nil {
		return 0, badRequest("%v", err)
	}
	return t, nil
}

// pageParam reads page (zero-based) and limit. Without a limit the result
// is unpaged; a page without a limit uses the default page size.
func pageParam(r *http.Request) (planner.Page, error) {
	q := r.URL.Query()
	var p planner.Page
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, badRequest("limit must be a non-negative integer")
		}
		if n > planner.MaxPageLimit {
			return p, badRequest("limit must not exceed %d", planner.MaxPageLimit)
		}
		p.Limit = n
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, badRequest("page must be a non-negative integer")
		}
		p.Index = n
		if p.Limit == 0 {
			p.Limit = planner.DefaultPageLimit
		}
	}
	return p, nil
}

func orderParam(r *http.Request) ([]planner.OrderBy, error) {
	q := r.URL.Query()
	orderBy, err := planner.ParseOrderBy(q.Get("orderBy"), q.Get("direction"))
	if err != nil {
		return nil, badRequest("%v", err)
	}
	return orderBy, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("%s must be a boolean", name)
	}
	return v, nil
}

func dateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, badRequest("%s must be an RFC 3339 timestamp or a date", name)
}

// listParam accepts repeated parameters and comma-separated values.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
