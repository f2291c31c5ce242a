package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/levante-framework/levante-dashboard-sub000/internal/access"
	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
	"github.com/levante-framework/levante-dashboard-sub000/internal/resolver"
)

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.healthTimeout)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func orgRequest(r *http.Request) (resolver.OrgPageRequest, error) {
	var req resolver.OrgPageRequest
	var err error
	if req.OrgType, err = orgTypeParam(r, ""); err != nil {
		return req, err
	}
	if req.Page, err = pageParam(r); err != nil {
		return req, err
	}
	if req.OrderBy, err = orderParam(r); err != nil {
		return req, err
	}
	if req.IncludeArchived, err = boolParam(r, "archived"); err != nil {
		return req, err
	}
	q := r.URL.Query()
	req.ParentDistrict = q.Get("district")
	req.ParentSchool = q.Get("school")
	req.OrgName = q.Get("name")
	return req, nil
}

func (s *server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	req, err := orgRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	recs, err := s.backend.FetchOrgPage(r.Context(), permissions(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, listResponse[docvalue.Record]{Items: items(recs), Page: req.Page.Index, Limit: req.Page.Limit})
}

func (s *server) handleCountOrgs(w http.ResponseWriter, r *http.Request) {
	req, err := orgRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	n, err := s.backend.CountOrgs(r.Context(), permissions(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, countResponse{Count: n})
}

func (s *server) handleAccessibleOrgs(w http.ResponseWriter, r *http.Request) {
	orgType, err := orgTypeParam(r, "")
	if err != nil {
		respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	ids, err := s.backend.AccessibleOrgIDs(r.Context(), permissions(r), orgType, access.Scope{
		SelectedDistrict: q.Get("district"),
		SelectedSchool:   q.Get("school"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string][]string{"ids": items(ids)})
}

func usersRequest(r *http.Request) (resolver.UsersRequest, error) {
	var req resolver.UsersRequest
	var err error
	if req.OrgType, err = orgTypeParam(r, ""); err != nil {
		return req, err
	}
	req.OrgID = chi.URLParam(r, "orgId")
	if req.Page, err = pageParam(r); err != nil {
		return req, err
	}
	if req.OrderBy, err = orderParam(r); err != nil {
		return req, err
	}
	if req.IncludeArchived, err = boolParam(r, "archived"); err != nil {
		return req, err
	}
	req.UserType = r.URL.Query().Get("userType")
	return req, nil
}

func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	req, err := usersRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	recs, err := s.backend.FetchUsersByOrg(r.Context(), permissions(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, listResponse[docvalue.Record]{Items: items(recs), Page: req.Page.Index, Limit: req.Page.Limit})
}

func (s *server) handleCountUsers(w http.ResponseWriter, r *http.Request) {
	req, err := usersRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	n, err := s.backend.CountUsersByOrg(r.Context(), permissions(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, countResponse{Count: n})
}

func administrationRequest(r *http.Request) (resolver.AdministrationPageRequest, error) {
	var req resolver.AdministrationPageRequest
	var err error
	if req.Page, err = pageParam(r); err != nil {
		return req, err
	}
	if req.OrderBy, err = orderParam(r); err != nil {
		return req, err
	}
	if req.OpenOn, err = dateParam(r, "openOn"); err != nil {
		return req, err
	}
	req.StatsOrgIDs = listParam(r, "stats_org")
	return req, nil
}

func (s *server) handleListAdministrations(w http.ResponseWriter, r *http.Request) {
	req, err := administrationRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	recs, err := s.backend.FetchAdministrations(r.Context(), permissions(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, listResponse[docvalue.Record]{Items: items(recs), Page: req.Page.Index, Limit: req.Page.Limit})
}

func (s *server) handleCountAdministrations(w http.ResponseWriter, r *http.Request) {
	req, err := administrationRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	n, err := s.backend.CountAdministrations(r.Context(), permissions(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, countResponse{Count: n})
}

func assignmentRequest(r *http.Request) (resolver.AssignmentPageRequest, error) {
	var req resolver.AssignmentPageRequest
	var err error
	req.AdministrationID = chi.URLParam(r, "administrationId")
	if req.OrgType, err = orgTypeParam(r, "orgType"); err != nil {
		return req, err
	}
	if req.OrgID = r.URL.Query().Get("orgId"); req.OrgID == "" {
		return req, badRequest("orgId is required")
	}
	if req.Page, err = pageParam(r); err != nil {
		return req, err
	}
	if req.OrderBy, err = orderParam(r); err != nil {
		return req, err
	}
	if req.IncludeScores, err = boolParam(r, "scores"); err != nil {
		return req, err
	}
	req.TaskIDs = listParam(r, "tasks")
	req.ScoreField = r.URL.Query().Get("scoreField")
	return req, nil
}

func (s *server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	req, err := assignmentRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	views, err := s.backend.FetchAssignmentsPage(r.Context(), permissions(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, listResponse[resolver.AssignmentView]{Items: items(views), Page: req.Page.Index, Limit: req.Page.Limit})
}

func (s *server) handleCountAssignments(w http.ResponseWriter, r *http.Request) {
	req, err := assignmentRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	n, err := s.backend.CountAssignments(r.Context(), permissions(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, countResponse{Count: n})
}

func (s *server) handleRunsByRef(w http.ResponseWriter, r *http.Request) {
	ids := listParam(r, "ids")
	if len(ids) == 0 {
		respondError(w, r, badRequest("ids is required"))
		return
	}
	if len(ids) > planner.MaxPageLimit {
		respondError(w, r, badRequest("at most %d ids per request", planner.MaxPageLimit))
		return
	}
	runs, err := s.backend.FetchRunsByRef(r.Context(), permissions(r), chi.URLParam(r, "userId"), ids)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, listResponse[docvalue.Record]{Items: items(runs)})
}

func items[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
