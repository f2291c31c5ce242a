package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/resolver"
	"github.com/levante-framework/levante-dashboard-sub000/internal/testutil/memstore"
)

func testStore() *memstore.Store {
	store := memstore.New("demo")
	store.Put("districts/D1", map[string]any{"name": "North", "archived": false, "schools": []string{"S1", "S2"}})
	store.Put("districts/D2", map[string]any{"name": "South", "archived": false, "schools": []string{"S3"}})
	store.Put("schools/S1", map[string]any{"name": "Lincoln", "archived": false, "districtId": "D1", "classes": []string{"C1"}})
	store.Put("schools/S2", map[string]any{"name": "Roosevelt", "archived": false, "districtId": "D1"})
	store.Put("schools/S3", map[string]any{"name": "Jefferson", "archived": false, "districtId": "D2"})
	store.Put("classes/C1", map[string]any{"name": "1A", "archived": false, "schoolId": "S1", "districtId": "D1"})
	store.Put("administrations/A1", map[string]any{"name": "Fall", "assignedOrgs": map[string]any{"districts": []string{"D1"}}})
	store.Put("users/u1", map[string]any{"username": "ada", "archived": false, "schools": map[string]any{"current": []string{"S1"}}})
	store.Put("users/u1/assignments/A1", map[string]any{
		"id": "A1", "started": true,
		"readOrgs":    map[string]any{"schools": []string{"S1"}},
		"assessments": []any{map[string]any{"taskId": "swr"}},
	})
	store.Put("users/u1/runs/r1", map[string]any{"assignmentId": "A1", "taskId": "swr", "readOrgs": map[string]any{"schools": []string{"S1"}}})
	return store
}

func withPermissions(perms model.Permissions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(model.WithPermissions(r.Context(), perms)))
		})
	}
}

func newTestRouter(t *testing.T, store *memstore.Store, perms model.Permissions) http.Handler {
	t.Helper()
	res, err := resolver.New(resolver.Config{Executor: store})
	require.NoError(t, err)
	return NewRouter(Config{Backend: res, Auth: withPermissions(perms)})
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return rr, body
}

func itemIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	raw, ok := body["items"].([]any)
	require.True(t, ok, "items missing")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item == nil {
			out = append(out, "")
			continue
		}
		m := item.(map[string]any)
		out = append(out, m["id"].(string))
	}
	return out
}

func TestHealth(t *testing.T) {
	store := testStore()
	h := newTestRouter(t, store, model.Permissions{})
	rr, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])

	store.FailOn(memstore.OpRunQuery, errors.New("down"))
	rr, body = get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unavailable", body["status"])
}

func TestListOrgs(t *testing.T) {
	h := newTestRouter(t, testStore(), model.Permissions{SuperAdmin: true})

	rr, body := get(t, h, "/api/v1/orgs/schools?district=D1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"S1", "S2"}, itemIDs(t, body))

	rr, body = get(t, h, "/api/v1/orgs/school?district=D1&orderBy=name&direction=desc&limit=1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"S2"}, itemIDs(t, body))

	rr, body = get(t, h, "/api/v1/orgs/schools/count?district=D1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), body["count"])
}

func TestListOrgs_Scoped(t *testing.T) {
	h := newTestRouter(t, testStore(), model.Permissions{AdminOrgs: &model.AdminOrgs{Classes: []string{"C1"}}})

	rr, body := get(t, h, "/api/v1/orgs/districts")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"D1"}, itemIDs(t, body))

	rr, body = get(t, h, "/api/v1/orgs/schools/accessible?district=D1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"S1"}, body["ids"])

	rr, body = get(t, h, "/api/v1/orgs/schools/accessible")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, body["ids"])
}

func TestBadRequests(t *testing.T) {
	h := newTestRouter(t, testStore(), model.Permissions{SuperAdmin: true})
	for _, target := range []string{
		"/api/v1/orgs/planets",
		"/api/v1/orgs/schools?limit=-1",
		"/api/v1/orgs/schools?limit=5000",
		"/api/v1/orgs/schools?page=x",
		"/api/v1/orgs/schools?orderBy=name&direction=sideways",
		"/api/v1/orgs/schools?archived=maybe",
		"/api/v1/administrations?openOn=yesterday",
		"/api/v1/administrations/A1/assignments?orgType=school",
		"/api/v1/administrations/A1/assignments?orgId=S1",
		"/api/v1/users/u1/runs",
	} {
		t.Run(target, func(t *testing.T) {
			rr, body := get(t, h, target)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestBackendFailureIsBadGateway(t *testing.T) {
	store := testStore()
	store.FailOn(memstore.OpRunQuery, errors.New("connection reset"))
	h := newTestRouter(t, store, model.Permissions{SuperAdmin: true})

	rr, body := get(t, h, "/api/v1/orgs/districts")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "document store request failed", body["error"])
}

func TestAdministrationsAndAssignments(t *testing.T) {
	h := newTestRouter(t, testStore(), model.Permissions{AdminOrgs: &model.AdminOrgs{Schools: []string{"S1"}}})

	rr, body := get(t, h, "/api/v1/administrations?stats_org=S1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"A1"}, itemIDs(t, body))

	rr, body = get(t, h, "/api/v1/administrations/count")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), body["count"])

	rr, body = get(t, h, "/api/v1/administrations/A1/assignments?orgType=school&orgId=S1&scores=true")
	require.Equal(t, http.StatusOK, rr.Code)
	views := body["items"].([]any)
	require.Len(t, views, 1)
	view := views[0].(map[string]any)
	assert.Equal(t, "u1", view["userId"])
	assert.Equal(t, string(resolver.StatusStarted), view["status"])

	rr, body = get(t, h, "/api/v1/administrations/A1/assignments/count?orgType=school&orgId=S1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), body["count"])

	rr, body = get(t, h, "/api/v1/administrations/A1/assignments?orgType=school&orgId=S3")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, body["items"])
}

func TestUsersAndRuns(t *testing.T) {
	h := newTestRouter(t, testStore(), model.Permissions{AdminOrgs: &model.AdminOrgs{Districts: []string{"D1"}}})

	rr, body := get(t, h, "/api/v1/orgs/schools/S1/users")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"u1"}, itemIDs(t, body))

	rr, body = get(t, h, "/api/v1/orgs/schools/S1/users/count")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), body["count"])

	rr, body = get(t, h, "/api/v1/users/u1/runs?ids=r1,missing")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"r1", ""}, itemIDs(t, body))
}

func TestMetricsAndAuthPlacement(t *testing.T) {
	res, err := resolver.New(resolver.Config{Executor: testStore()})
	require.NoError(t, err)
	denyAll := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		})
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metrics":true}`))
	})
	h := NewRouter(Config{Backend: res, Auth: denyAll, Metrics: metrics})

	rr, _ := get(t, h, "/api/v1/orgs/districts")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr, _ = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr, _ = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestListOrgs_NonFiniteDoubleEncodesAsNull(t *testing.T) {
	store := testStore()
	store.Put("districts/D3", map[string]any{"name": "East", "archived": false, "avgScore": math.NaN()})
	h := newTestRouter(t, store, model.Permissions{SuperAdmin: true})

	rr, body := get(t, h, "/api/v1/orgs/districts?name=East&orderBy=avgScore")
	require.Equal(t, http.StatusOK, rr.Code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	district := items[0].(map[string]any)
	assert.Contains(t, district, "avgScore")
	assert.Nil(t, district["avgScore"])
}

func TestRespondJSON_EncodeFailureIs500(t *testing.T) {
	rr := httptest.NewRecorder()
	respondJSON(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orgs/districts", nil), http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"failed to encode response"}`, rr.Body.String())
}

func TestRunsByRef_PathLikeIDIsBadRequest(t *testing.T) {
	h := newTestRouter(t, testStore(), model.Permissions{SuperAdmin: true})

	rr, body := get(t, h, "/api/v1/users/u1/runs?ids=r1,r1/trials/t1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["error"], "invalid document id")

	rr, _ = get(t, h, "/api/v1/administrations?stats_org=S1/extra")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
