package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups that have no entry.
var ErrNotFound = errors.New("not found")

// FeatureStore caches embeddings and perceptual hashes by content hash
type FeatureStore interface {
	// GetFeatures returns ErrNotFound when nothing is cached for contentHash
	GetFeatures(ctx context.Context, contentHash string) (*StoredFeatures, error)
	// SaveFeatures inserts or replaces the entry for f.ContentHash
	SaveFeatures(ctx context.Context, f *StoredFeatures) error
	// CountFeatures returns the number of cached entries
	CountFeatures(ctx context.Context) (int, error)
	// ClearFeatures removes all entries and returns how many were removed
	ClearFeatures(ctx context.Context) (int, error)
}

// TextStore caches extracted text by content hash and language
type TextStore interface {
	// GetText returns ErrNotFound when nothing is cached for the pair
	GetText(ctx context.Context, contentHash, lang string) (*StoredText, error)
	// SaveText inserts or replaces the entry for (t.ContentHash, t.Language)
	SaveText(ctx context.Context, t *StoredText) error
	// CountTexts returns the number of cached entries
	CountTexts(ctx context.Context) (int, error)
	// ClearTexts removes all entries and returns how many were removed
	ClearTexts(ctx context.Context) (int, error)
}
