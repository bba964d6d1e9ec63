package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/database"
)

// TextRepository stores extracted text in the text_cache table.
type TextRepository struct {
	pool *Pool
}

// NewTextRepository creates a new PostgreSQL text repository
func NewTextRepository(pool *Pool) *TextRepository {
	return &TextRepository{pool: pool}
}

// GetText retrieves cached text by content hash and language
func (r *TextRepository) GetText(ctx context.Context, contentHash, lang string) (*database.StoredText, error) {
	query := `
		SELECT content_hash, language, text, extractor, created_at
		FROM text_cache
		WHERE content_hash = $1 AND language = $2
	`

	var t database.StoredText
	err := r.pool.QueryRow(ctx, query, contentHash, lang).Scan(
		&t.ContentHash,
		&t.Language,
		&t.Text,
		&t.Extractor,
		&t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query text: %w", err)
	}
	return &t, nil
}

// SaveText stores extracted text (upsert)
func (r *TextRepository) SaveText(ctx context.Context, t *database.StoredText) error {
	query := `
		INSERT INTO text_cache (content_hash, language, text, extractor)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash, language) DO UPDATE SET
			text = EXCLUDED.text,
			extractor = EXCLUDED.extractor,
			created_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, t.ContentHash, t.Language, t.Text, t.Extractor); err != nil {
		return fmt.Errorf("save text: %w", err)
	}
	return nil
}

// CountTexts returns the number of cached text rows
func (r *TextRepository) CountTexts(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM text_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("count texts: %w", err)
	}
	return count, nil
}

// ClearTexts deletes all cached text rows
func (r *TextRepository) ClearTexts(ctx context.Context) (int, error) {
	res, err := r.pool.Exec(ctx, "DELETE FROM text_cache")
	if err != nil {
		return 0, fmt.Errorf("clear texts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear texts: %w", err)
	}
	return int(n), nil
}
