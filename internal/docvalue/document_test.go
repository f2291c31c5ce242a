package docvalue

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "projects/demo/databases/(default)/documents"

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Name
	}{
		{
			name: "top level",
			in:   root + "/schools/S1",
			want: Name{Root: root, Path: "schools/S1", Collection: "schools", ID: "S1"},
		},
		{
			name: "subcollection",
			in:   root + "/users/U1/runs/R9",
			want: Name{Root: root, Path: "users/U1/runs/R9", Parent: "users/U1", Collection: "runs", ID: "R9"},
		},
		{
			name: "relative",
			in:   "administrations/A1/stats/total",
			want: Name{Path: "administrations/A1/stats/total", Parent: "administrations/A1", Collection: "stats", ID: "total"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseName(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseName_Invalid(t *testing.T) {
	for _, in := range []string{"", "schools", root + "/schools", "users//runs/R1", root + "/"} {
		_, err := ParseName(in)
		assert.Error(t, err, in)
	}
}

func TestDocumentsRoot(t *testing.T) {
	assert.Equal(t, root, DocumentsRoot("demo", ""))
	assert.Equal(t, "projects/demo/databases/staging/documents", DocumentsRoot("demo", "staging"))
	assert.Equal(t, root+"/schools/S1", FullPath(root+"/", "/schools/S1"))
}

func TestDecodeDocument(t *testing.T) {
	raw := `{
		"name": "projects/demo/databases/(default)/documents/users/U1/runs/R1",
		"fields": {
			"assignmentId": {"stringValue": "A1"},
			"bestRun": {"booleanValue": true},
			"scores": {"mapValue": {"fields": {"computed": {"mapValue": {"fields": {"composite": {"integerValue": "31"}}}}}}}
		},
		"createTime": "2024-01-01T00:00:00Z",
		"updateTime": "2024-01-02T00:00:00Z"
	}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	rec := DecodeDocument(doc, true)
	assert.Equal(t, "R1", rec.ID())
	assert.Equal(t, "U1", rec.ParentID())
	assert.Equal(t, "A1", rec.String("assignmentId"))
	assert.True(t, rec.Bool("bestRun"))
	score, ok := rec.Number("scores.computed.composite")
	assert.True(t, ok)
	assert.Equal(t, 31.0, score)
	assert.NotContains(t, rec, "name")
	assert.NotContains(t, rec, "createTime")

	withoutParent := DecodeDocument(doc, false)
	assert.NotContains(t, withoutParent, FieldParentDoc)
}

func TestDecodeDocument_TopLevelHasNoParent(t *testing.T) {
	doc := Document{
		Name:   root + "/districts/D1",
		Fields: map[string]Value{"schools": Strings("S1", "S2")},
	}
	rec := DecodeDocument(doc, true)
	assert.Equal(t, "D1", rec.ID())
	assert.Equal(t, "", rec.ParentID())
	assert.Equal(t, []string{"S1", "S2"}, rec.Strings("schools"))
}

func TestRecord_Get(t *testing.T) {
	rec := Record{
		"name":   "Lincoln",
		"nested": map[string]any{"inner": map[string]any{"flag": nil}},
	}

	_, ok := rec.Get("nested.inner.flag")
	assert.True(t, ok)
	assert.True(t, rec.Has("nested.inner.flag"))
	assert.False(t, rec.Has("nested.inner.other"))
	assert.False(t, rec.Has("name.first"))
	assert.Equal(t, "", rec.String("missing"))
	assert.Nil(t, rec.Strings("missing"))

	var empty Record
	assert.False(t, empty.Has("id"))
}

func TestRecord_MarshalJSONNonFiniteAsNull(t *testing.T) {
	rec := Record{
		"id":     "S1",
		"ratio":  math.NaN(),
		"scores": map[string]any{"high": math.Inf(1), "low": 1.5},
		"trend":  []any{math.Inf(-1), 2.0},
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"S1","ratio":null,"scores":{"high":null,"low":1.5},"trend":[null,2]}`, string(raw))
	assert.True(t, math.IsNaN(rec["ratio"].(float64)), "the record itself is not modified")
}
