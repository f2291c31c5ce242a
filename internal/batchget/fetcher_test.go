package batchget

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levante-framework/levante-dashboard-sub000/internal/testutil/memstore"
)

func seededStore() *memstore.Store {
	store := memstore.New("demo")
	store.Put("schools/S1", map[string]any{"name": "Lincoln", "districtId": "D1"})
	store.Put("schools/S2", map[string]any{"name": "Roosevelt", "districtId": "D1"})
	store.Put("districts/D1", map[string]any{"name": "North"})
	store.Put("users/u1/runs/r1", map[string]any{"taskId": "swr"})
	store.Put("users/u2/runs/r1", map[string]any{"taskId": "pa"})
	return store
}

func TestGet_MissingDocumentIsNil(t *testing.T) {
	f := New(seededStore())
	got, err := f.Get(context.Background(), Refs("schools", "missing-id"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestGet_SameLengthSameOrderWithDuplicates(t *testing.T) {
	store := seededStore()
	f := New(store)
	refs := Refs("schools", "S2", "missing", "S1", "S2")

	got, err := f.Get(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "S2", got[0].ID())
	assert.Equal(t, "Roosevelt", got[0]["name"])
	assert.Nil(t, got[1])
	assert.Equal(t, "S1", got[2].ID())
	assert.Equal(t, "S2", got[3].ID())

	// Duplicates are fetched once.
	require.Len(t, store.Batches(), 1)
	assert.ElementsMatch(t, []string{"schools/S2", "schools/missing", "schools/S1"}, store.Batches()[0])
}

func TestGet_MixedCollectionsAndSubcollections(t *testing.T) {
	f := New(seededStore(), WithParentIDs())
	refs := []Ref{
		{Collection: "districts", ID: "D1"},
		{Collection: "schools", ID: "S1"},
		{Parent: "users/u2", Collection: "runs", ID: "r1"},
		{Parent: "users/u1", Collection: "runs", ID: "r1"},
	}
	got, err := f.Get(context.Background(), refs)
	require.NoError(t, err)

	assert.Equal(t, "North", got[0]["name"])
	assert.Equal(t, "Lincoln", got[1]["name"])
	assert.Equal(t, "pa", got[2]["taskId"])
	assert.Equal(t, "u2", got[2].ParentID())
	assert.Equal(t, "swr", got[3]["taskId"])
	assert.Equal(t, "u1", got[3].ParentID())
	assert.Empty(t, got[0].ParentID())
}

func TestByID_SkipsMissing(t *testing.T) {
	f := New(seededStore())
	got, err := f.ByID(context.Background(), Refs("schools", "S1", "nope", "S2"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "S1")
	assert.NotContains(t, got, "nope")
}

func TestGet_ChunksLargeRequests(t *testing.T) {
	store := memstore.New("demo")
	ids := make([]string, 0, 25)
	for i := range 25 {
		id := fmt.Sprintf("c%02d", i)
		ids = append(ids, id)
		if i%2 == 0 {
			store.Put("classes/"+id, map[string]any{"name": id})
		}
	}

	f := New(store, WithChunkSize(10))
	got, err := f.Get(context.Background(), Refs("classes", ids...))
	require.NoError(t, err)
	require.Len(t, got, 25)
	for i, rec := range got {
		if i%2 == 0 {
			require.NotNil(t, rec, "index %d", i)
			assert.Equal(t, ids[i], rec.ID())
		} else {
			assert.Nil(t, rec, "index %d", i)
		}
	}

	batches := store.Batches()
	require.Len(t, batches, 3)
	sizes := []int{len(batches[0]), len(batches[1]), len(batches[2])}
	assert.ElementsMatch(t, []int{10, 10, 5}, sizes)
}

func TestGet_MaskRestrictsFields(t *testing.T) {
	f := New(seededStore())
	got, err := f.Get(context.Background(), Refs("schools", "S1"), "districtId")
	require.NoError(t, err)
	assert.Equal(t, "D1", got[0]["districtId"])
	assert.NotContains(t, got[0], "name")
}

func TestGet_ChunkFailurePropagates(t *testing.T) {
	store := seededStore()
	store.FailOn(memstore.OpBatchGet, errors.New("unavailable"))
	_, err := New(store).Get(context.Background(), Refs("schools", "S1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestGet_EmptyRefsSkipsCall(t *testing.T) {
	store := seededStore()
	got, err := New(store).Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.Calls(memstore.OpBatchGet))
}
