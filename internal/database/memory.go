package database

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps features and texts in process memory. It is the fallback
// when neither DATABASE_URL nor REDIS_ADDR is configured, and the store used
// by the API server between runs.
type MemoryStore struct {
	mu       sync.RWMutex
	features map[string]StoredFeatures
	texts    map[textKey]StoredText
}

type textKey struct {
	hash string
	lang string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		features: make(map[string]StoredFeatures),
		texts:    make(map[textKey]StoredText),
	}
}

func (m *MemoryStore) GetFeatures(_ context.Context, contentHash string) (*StoredFeatures, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.features[contentHash]
	if !ok {
		return nil, ErrNotFound
	}
	f.Semantic = slices.Clone(f.Semantic)
	f.Visual = slices.Clone(f.Visual)
	return &f, nil
}

func (m *MemoryStore) SaveFeatures(_ context.Context, f *StoredFeatures) error {
	stored := *f
	stored.Semantic = slices.Clone(f.Semantic)
	stored.Visual = slices.Clone(f.Visual)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[f.ContentHash] = stored
	return nil
}

func (m *MemoryStore) CountFeatures(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.features), nil
}

func (m *MemoryStore) ClearFeatures(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.features)
	clear(m.features)
	return n, nil
}

func (m *MemoryStore) GetText(_ context.Context, contentHash, lang string) (*StoredText, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.texts[textKey{contentHash, lang}]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) SaveText(_ context.Context, t *StoredText) error {
	stored := *t
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[textKey{t.ContentHash, t.Language}] = stored
	return nil
}

func (m *MemoryStore) CountTexts(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.texts), nil
}

func (m *MemoryStore) ClearTexts(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.texts)
	clear(m.texts)
	return n, nil
}
