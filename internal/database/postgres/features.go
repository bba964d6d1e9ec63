package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/pgvector/pgvector-go"
)

// FeatureRepository stores embeddings and perceptual hashes in the features
// table. Hashes are stored bit-for-bit in signed BIGINT columns.
type FeatureRepository struct {
	pool *Pool
}

// NewFeatureRepository creates a new PostgreSQL feature repository
func NewFeatureRepository(pool *Pool) *FeatureRepository {
	return &FeatureRepository{pool: pool}
}

// GetFeatures retrieves cached features by content hash
func (r *FeatureRepository) GetFeatures(ctx context.Context, contentHash string) (*database.StoredFeatures, error) {
	query := `
		SELECT content_hash, semantic, visual, phash, dhash, model, created_at
		FROM features
		WHERE content_hash = $1
	`

	var f database.StoredFeatures
	var semantic, visual pgvector.Vector
	var phash, dhash int64

	err := r.pool.QueryRow(ctx, query, contentHash).Scan(
		&f.ContentHash,
		&semantic,
		&visual,
		&phash,
		&dhash,
		&f.Model,
		&f.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}

	f.Semantic = semantic.Slice()
	f.Visual = visual.Slice()
	f.PHash = uint64(phash) //nolint:gosec // bit pattern round-trip
	f.DHash = uint64(dhash) //nolint:gosec // bit pattern round-trip
	return &f, nil
}

// SaveFeatures stores features (upsert)
func (r *FeatureRepository) SaveFeatures(ctx context.Context, f *database.StoredFeatures) error {
	if len(f.Semantic) == 0 || len(f.Visual) == 0 {
		return errors.New("save features: empty embedding")
	}
	query := `
		INSERT INTO features (content_hash, semantic, visual, phash, dhash, model)
		VALUES ($1, $2::vector, $3::vector, $4, $5, $6)
		ON CONFLICT (content_hash) DO UPDATE SET
			semantic = EXCLUDED.semantic,
			visual = EXCLUDED.visual,
			phash = EXCLUDED.phash,
			dhash = EXCLUDED.dhash,
			model = EXCLUDED.model,
			created_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		f.ContentHash,
		pgvector.NewVector(f.Semantic),
		pgvector.NewVector(f.Visual),
		int64(f.PHash), //nolint:gosec // bit pattern round-trip
		int64(f.DHash), //nolint:gosec // bit pattern round-trip
		f.Model,
	)
	if err != nil {
		return fmt.Errorf("save features: %w", err)
	}
	return nil
}

// CountFeatures returns the number of cached feature rows
func (r *FeatureRepository) CountFeatures(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM features").Scan(&count); err != nil {
		return 0, fmt.Errorf("count features: %w", err)
	}
	return count, nil
}

// ClearFeatures deletes all cached feature rows
func (r *FeatureRepository) ClearFeatures(ctx context.Context) (int, error) {
	res, err := r.pool.Exec(ctx, "DELETE FROM features")
	if err != nil {
		return 0, fmt.Errorf("clear features: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear features: %w", err)
	}
	return int(n), nil
}
