package database

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVectors() []IndexedVector {
	return []IndexedVector{
		{Key: "east.jpg", Vector: []float32{1, 0, 0}},
		{Key: "east-crop.jpg", Vector: []float32{0.95, 0.05, 0}},
		{Key: "north.jpg", Vector: []float32{0, 1, 0}},
		{Key: "up.jpg", Vector: []float32{0, 0, 1}},
		{Key: "missing.jpg"},
	}
}

func TestHNSWIndex_Search(t *testing.T) {
	idx := NewHNSWIndex()
	require.NoError(t, idx.Build(testVectors()))
	assert.Equal(t, 4, idx.Count())

	keys, distances, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.ElementsMatch(t, []string{"east.jpg", "east-crop.jpg"}, keys)
	for _, d := range distances {
		assert.Less(t, d, 0.01)
	}
}

func TestHNSWIndex_NotInitialized(t *testing.T) {
	_, _, err := NewHNSWIndex().Search([]float32{1}, 1)
	assert.Error(t, err)
	assert.Zero(t, NewHNSWIndex().Count())
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx := NewHNSWIndex()
	err := idx.Build([]IndexedVector{
		{Key: "a", Vector: []float32{1, 0}},
		{Key: "b", Vector: []float32{1, 0, 0}},
	})
	require.Error(t, err)

	require.NoError(t, idx.Build(testVectors()))
	_, _, err = idx.Search([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestHNSWIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semantic.hnsw")

	idx := NewHNSWIndex()
	require.NoError(t, idx.Build(testVectors()))
	require.NoError(t, idx.Save(path))

	meta, err := LoadHNSWMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 4, meta.Count)
	assert.Equal(t, 3, meta.Dim)

	loaded := NewHNSWIndex()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 4, loaded.Count())

	keys, _, err := loaded.Search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"north.jpg"}, keys)
}

func TestVectorsDigest(t *testing.T) {
	base := VectorsDigest(testVectors())

	reversed := slices.Clone(testVectors())
	slices.Reverse(reversed)
	assert.Equal(t, base, VectorsDigest(reversed), "order does not matter")

	withoutEmpty := testVectors()[:4]
	assert.Equal(t, base, VectorsDigest(withoutEmpty), "entries without a vector are not indexed")

	changed := testVectors()
	changed[2].Vector = []float32{0, 0.9, 0.1}
	assert.NotEqual(t, base, VectorsDigest(changed))

	renamed := testVectors()
	renamed[0].Key = "west.jpg"
	assert.NotEqual(t, base, VectorsDigest(renamed))
}

func TestHNSWIndex_SaveKeepsDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semantic.hnsw")

	idx := NewHNSWIndex()
	require.NoError(t, idx.Build(testVectors()))
	require.NoError(t, idx.Save(path))

	meta, err := LoadHNSWMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, VectorsDigest(testVectors()), meta.Digest)

	// a loaded index saves the digest it was loaded with
	loaded := NewHNSWIndex()
	require.NoError(t, loaded.Load(path))
	copyPath := filepath.Join(t.TempDir(), "copy.hnsw")
	require.NoError(t, loaded.Save(copyPath))
	meta, err = LoadHNSWMetadata(copyPath)
	require.NoError(t, err)
	assert.Equal(t, VectorsDigest(testVectors()), meta.Digest)
}

func TestHNSWIndex_LoadMissing(t *testing.T) {
	err := NewHNSWIndex().Load(filepath.Join(t.TempDir(), "nope.hnsw"))
	assert.Error(t, err)
}
