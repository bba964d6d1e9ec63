package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Features(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetFeatures(ctx, "abc")
	require.ErrorIs(t, err, ErrNotFound)

	semantic := []float32{0.1, 0.2, 0.3}
	require.NoError(t, store.SaveFeatures(ctx, &StoredFeatures{
		ContentHash: "abc",
		Semantic:    semantic,
		Visual:      []float32{1, 0},
		PHash:       0xF0F0,
		Model:       "ViT-B-32",
	}))

	// the store must not alias caller slices
	semantic[0] = 99

	got, err := store.GetFeatures(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Semantic)
	assert.Equal(t, uint64(0xF0F0), got.PHash)
	assert.False(t, got.CreatedAt.IsZero())

	got.Visual[0] = 42
	again, _ := store.GetFeatures(ctx, "abc")
	assert.Equal(t, float32(1), again.Visual[0])

	n, err := store.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := store.ClearFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = store.GetFeatures(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TextsAreKeyedByLanguage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SaveText(ctx, &StoredText{ContentHash: "h1", Language: "chi_sim", Text: "故宫"}))
	require.NoError(t, store.SaveText(ctx, &StoredText{ContentHash: "h1", Language: "chi_tra", Text: "故宮"}))

	sim, err := store.GetText(ctx, "h1", "chi_sim")
	require.NoError(t, err)
	assert.Equal(t, "故宫", sim.Text)

	tra, err := store.GetText(ctx, "h1", "chi_tra")
	require.NoError(t, err)
	assert.Equal(t, "故宮", tra.Text)

	_, err = store.GetText(ctx, "h1", "eng")
	assert.ErrorIs(t, err, ErrNotFound)

	n, _ := store.CountTexts(ctx)
	assert.Equal(t, 2, n)

	removed, err := store.ClearTexts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestMemoryStore_ImplementsStores(t *testing.T) {
	var _ FeatureStore = NewMemoryStore()
	var _ TextStore = NewMemoryStore()
}
