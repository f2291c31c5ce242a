package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levante-framework/levante-dashboard-sub000/internal/batchget"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/testutil/memstore"
)

// D1 -> S1 (C1, C2), S2 (C3); D2 -> S3 (C4)
func hierarchyStore() *memstore.Store {
	store := memstore.New("demo")
	store.Put("districts/D1", map[string]any{"name": "North", "schools": []string{"S1", "S2"}})
	store.Put("districts/D2", map[string]any{"name": "South", "schools": []string{"S3"}})
	store.Put("schools/S1", map[string]any{"name": "Lincoln", "districtId": "D1", "classes": []string{"C1", "C2"}})
	store.Put("schools/S2", map[string]any{"name": "Roosevelt", "districtId": "D1", "classes": []string{"C3"}})
	store.Put("schools/S3", map[string]any{"name": "Jefferson", "districtId": "D2", "classes": []string{"C4"}})
	store.Put("classes/C1", map[string]any{"name": "1A", "schoolId": "S1", "districtId": "D1"})
	store.Put("classes/C2", map[string]any{"name": "1B", "schoolId": "S1", "districtId": "D1"})
	store.Put("classes/C3", map[string]any{"name": "2A", "schoolId": "S2", "districtId": "D1"})
	store.Put("classes/C4", map[string]any{"name": "3A", "schoolId": "S3", "districtId": "D2"})
	return store
}

func newTestResolver(store *memstore.Store) *Resolver {
	return NewResolver(batchget.New(store), nil)
}

func TestAccessibleIDs_DistrictDerivedFromSchool(t *testing.T) {
	store := memstore.New("demo")
	store.Put("schools/S1", map[string]any{"districtId": "D1"})
	r := newTestResolver(store)

	ids, err := r.AccessibleIDs(context.Background(), model.OrgDistrict, &model.AdminOrgs{Schools: []string{"S1"}}, Scope{})
	require.NoError(t, err)
	assert.Equal(t, []string{"D1"}, ids.Sorted())
}

func TestAccessibleIDs_SchoolsOfGrantedDistrict(t *testing.T) {
	store := memstore.New("demo")
	store.Put("districts/D1", map[string]any{"schools": []string{"S1", "S2"}})
	r := newTestResolver(store)

	ids, err := r.AccessibleIDs(context.Background(), model.OrgSchool, &model.AdminOrgs{Districts: []string{"D1"}}, Scope{SelectedDistrict: "D1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, ids.Sorted())
}

func TestAccessibleIDs_Table(t *testing.T) {
	tests := []struct {
		name    string
		orgType model.OrgType
		grants  *model.AdminOrgs
		scope   Scope
		want    []string
	}{
		{
			name:    "districts union of grants and derived",
			orgType: model.OrgDistrict,
			grants:  &model.AdminOrgs{Districts: []string{"D2"}, Classes: []string{"C1", "C3"}},
			want:    []string{"D1", "D2"},
		},
		{
			name:    "districts ignore missing lookups",
			orgType: model.OrgDistrict,
			grants:  &model.AdminOrgs{Schools: []string{"ghost"}},
			want:    []string{},
		},
		{
			name:    "schools without selected district",
			orgType: model.OrgSchool,
			grants:  &model.AdminOrgs{Districts: []string{"D1"}},
			want:    []string{},
		},
		{
			name:    "schools from granted school and class",
			orgType: model.OrgSchool,
			grants:  &model.AdminOrgs{Schools: []string{"S1", "S3"}, Classes: []string{"C3"}},
			scope:   Scope{SelectedDistrict: "D1"},
			want:    []string{"S1", "S2"},
		},
		{
			name:    "schools outside selected district excluded",
			orgType: model.OrgSchool,
			grants:  &model.AdminOrgs{Schools: []string{"S3"}},
			scope:   Scope{SelectedDistrict: "D1"},
			want:    []string{},
		},
		{
			name:    "classes of granted school",
			orgType: model.OrgClass,
			grants:  &model.AdminOrgs{Schools: []string{"S1"}},
			scope:   Scope{SelectedSchool: "S1"},
			want:    []string{"C1", "C2"},
		},
		{
			name:    "classes of school under granted district",
			orgType: model.OrgClass,
			grants:  &model.AdminOrgs{Districts: []string{"D1"}},
			scope:   Scope{SelectedSchool: "S2"},
			want:    []string{"C3"},
		},
		{
			name:    "classes intersect grants",
			orgType: model.OrgClass,
			grants:  &model.AdminOrgs{Classes: []string{"C2", "C4"}},
			scope:   Scope{SelectedSchool: "S1"},
			want:    []string{"C2"},
		},
		{
			name:    "classes without selected school",
			orgType: model.OrgClass,
			grants:  &model.AdminOrgs{Schools: []string{"S1"}},
			want:    []string{},
		},
		{
			name:    "groups verbatim",
			orgType: model.OrgGroup,
			grants:  &model.AdminOrgs{Groups: []string{"G2", "G1", "G2"}},
			want:    []string{"G1", "G2"},
		},
		{
			name:    "families verbatim",
			orgType: model.OrgFamily,
			grants:  &model.AdminOrgs{Families: []string{"F1"}},
			want:    []string{"F1"},
		},
		{
			name:    "nil grants",
			orgType: model.OrgDistrict,
			want:    []string{},
		},
	}

	r := newTestResolver(hierarchyStore())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := r.AccessibleIDs(context.Background(), tt.orgType, tt.grants, tt.scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids.Sorted())

			n, err := r.CountAccessible(context.Background(), tt.orgType, tt.grants, tt.scope)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func TestAccessibleIDs_GrantPropagatesDownward(t *testing.T) {
	r := newTestResolver(hierarchyStore())
	grants := &model.AdminOrgs{Districts: []string{"D1"}}

	schools, err := r.AccessibleIDs(context.Background(), model.OrgSchool, grants, Scope{SelectedDistrict: "D1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, schools.Sorted())

	for _, school := range schools.Sorted() {
		classes, err := r.AccessibleIDs(context.Background(), model.OrgClass, grants, Scope{SelectedSchool: school})
		require.NoError(t, err)
		assert.NotZero(t, classes.Len(), "school %s", school)
	}
}

func TestAccessibleIDs_Idempotent(t *testing.T) {
	r := newTestResolver(hierarchyStore())
	grants := &model.AdminOrgs{Schools: []string{"S1"}, Classes: []string{"C3"}}
	before := *grants
	before.Schools = append([]string(nil), grants.Schools...)
	before.Classes = append([]string(nil), grants.Classes...)

	first, err := r.AccessibleIDs(context.Background(), model.OrgSchool, grants, Scope{SelectedDistrict: "D1"})
	require.NoError(t, err)
	second, err := r.AccessibleIDs(context.Background(), model.OrgSchool, grants, Scope{SelectedDistrict: "D1"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, *grants)
}

func TestAccessibleIDs_StoreFailurePropagates(t *testing.T) {
	store := hierarchyStore()
	store.FailOn(memstore.OpBatchGet, errors.New("backend down"))
	r := newTestResolver(store)

	_, err := r.AccessibleIDs(context.Background(), model.OrgDistrict, &model.AdminOrgs{Schools: []string{"S1"}}, Scope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestCanAccessOrg(t *testing.T) {
	r := newTestResolver(hierarchyStore())
	tests := []struct {
		name    string
		grants  *model.AdminOrgs
		orgType model.OrgType
		orgID   string
		want    bool
	}{
		{"direct grant", &model.AdminOrgs{Classes: []string{"C4"}}, model.OrgClass, "C4", true},
		{"school under granted district", &model.AdminOrgs{Districts: []string{"D1"}}, model.OrgSchool, "S2", true},
		{"school in other district", &model.AdminOrgs{Districts: []string{"D1"}}, model.OrgSchool, "S3", false},
		{"class under granted school", &model.AdminOrgs{Schools: []string{"S1"}}, model.OrgClass, "C2", true},
		{"class under granted district", &model.AdminOrgs{Districts: []string{"D2"}}, model.OrgClass, "C4", true},
		{"district derived from class", &model.AdminOrgs{Classes: []string{"C1"}}, model.OrgDistrict, "D1", true},
		{"group not granted", &model.AdminOrgs{Groups: []string{"G1"}}, model.OrgGroup, "G2", false},
		{"nil grants", nil, model.OrgDistrict, "D1", false},
		{"missing class", &model.AdminOrgs{Schools: []string{"S1"}}, model.OrgClass, "ghost", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := r.CanAccessOrg(context.Background(), tt.grants, tt.orgType, tt.orgID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVisibleOrgs(t *testing.T) {
	r := newTestResolver(hierarchyStore())

	got, err := r.VisibleOrgs(context.Background(), &model.AdminOrgs{
		Districts: []string{"D2"},
		Classes:   []string{"C1"},
		Groups:    []string{"G1"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"D1", "D2"}, got[model.OrgDistrict])
	assert.Equal(t, []string{"S1", "S3"}, got[model.OrgSchool])
	assert.Equal(t, []string{"C1", "C4"}, got[model.OrgClass])
	assert.Equal(t, []string{"G1"}, got[model.OrgGroup])
	assert.NotContains(t, got, model.OrgFamily)
}

func TestVisibleOrgs_Empty(t *testing.T) {
	r := newTestResolver(hierarchyStore())
	got, err := r.VisibleOrgs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, got.Total())
}
