package model

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrgType(t *testing.T) {
	tests := []struct {
		in   string
		want OrgType
	}{
		{"district", OrgDistrict},
		{"Districts", OrgDistrict},
		{"schools", OrgSchool},
		{"class", OrgClass},
		{"classes", OrgClass},
		{" groups ", OrgGroup},
		{"family", OrgFamily},
		{"families", OrgFamily},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrgType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseOrgType("teams")
	assert.Error(t, err)
}

func TestOrgType_Table(t *testing.T) {
	assert.Equal(t, "classes", OrgClass.Collection())
	assert.Equal(t, "families", OrgFamily.Collection())
	assert.Equal(t, "districtId", OrgSchool.ParentField())
	assert.Equal(t, "schoolId", OrgClass.ParentField())
	assert.Equal(t, "", OrgGroup.ParentField())
	assert.True(t, OrgClass.Hierarchical())
	assert.False(t, OrgFamily.Hierarchical())
	assert.False(t, OrgType(0).Valid())
	assert.Equal(t, "OrgType(0)", OrgType(0).String())
}

func TestOrgType_JSONKeys(t *testing.T) {
	raw, err := json.Marshal(map[OrgType][]string{OrgSchool: {"S1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"schools":["S1"]}`, string(raw))

	var decoded OrgSets
	require.NoError(t, json.Unmarshal([]byte(`{"districts":["D1"],"class":["C1"]}`), &decoded))
	assert.Equal(t, OrgSets{OrgDistrict: {"D1"}, OrgClass: {"C1"}}, decoded)
	assert.Equal(t, 2, decoded.Total())
}

func TestAdminOrgs_NilSafe(t *testing.T) {
	var a *AdminOrgs
	assert.Nil(t, a.IDs(OrgSchool))
	assert.True(t, a.Empty())
}

func TestAdminOrgsFromMap(t *testing.T) {
	got := AdminOrgsFromMap(map[string]any{
		"districts": []any{"D1", 3, ""},
		"schools":   []string{"S1"},
		"families":  "F1",
		"unknown":   []any{"X"},
	})
	assert.Equal(t, &AdminOrgs{
		Districts: []string{"D1"},
		Schools:   []string{"S1"},
		Families:  []string{"F1"},
	}, got)
	assert.False(t, got.Empty())
	assert.Nil(t, AdminOrgsFromMap(nil))
}

func TestPermissionsContext(t *testing.T) {
	_, ok := PermissionsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPermissions(context.Background(), Permissions{SuperAdmin: true})
	p, ok := PermissionsFromContext(ctx)
	assert.True(t, ok)
	assert.True(t, p.SuperAdmin)
}
