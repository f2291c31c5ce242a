package setutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_SkipsEmpty(t *testing.T) {
	s := New("S1", "", "S2", "S1")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("S1"))
	assert.False(t, s.Has(""))
}

func TestUnion(t *testing.T) {
	a := New("D1")
	b := New("D2", "D1")
	got := a.Union(b, nil, New("D3"))
	assert.Equal(t, []string{"D1", "D2", "D3"}, got.Sorted())
	assert.Equal(t, 1, a.Len(), "union must not mutate the receiver")
}

func TestIntersect(t *testing.T) {
	children := New("S1", "S2", "S3")
	granted := New("S2", "S9")
	assert.Equal(t, []string{"S2"}, children.Intersect(granted).Sorted())
	assert.Empty(t, children.Intersect(nil).Sorted())
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, Dedupe([]string{"b", "", "a", "b"}))
	assert.Empty(t, Dedupe(nil))
}

func TestFilterOrdered(t *testing.T) {
	got := FilterOrdered([]string{"C3", "C1", "C2", "C1"}, New("C1", "C3"))
	assert.Equal(t, []string{"C3", "C1"}, got)
}
