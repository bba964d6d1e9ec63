// Package redis is the Redis backend for the extracted-text cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "photo-dedup:text:"
	scanBatch = 500
)

// TextStore caches extracted text in Redis as JSON values with a TTL.
type TextStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// textModel is the JSON value stored under each key.
type textModel struct {
	Text      string    `json:"text"`
	Extractor string    `json:"extractor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTextStore connects to Redis and verifies the connection.
func NewTextStore(ctx context.Context, cfg *config.RedisConfig) (*TextStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &TextStore{
		client: client,
		ttl:    time.Duration(cfg.TTLHours) * time.Hour,
	}, nil
}

// Close closes the client.
func (s *TextStore) Close() error {
	return s.client.Close()
}

func textKey(contentHash, lang string) string {
	return keyPrefix + lang + ":" + contentHash
}

func (s *TextStore) GetText(ctx context.Context, contentHash, lang string) (*database.StoredText, error) {
	data, err := s.client.Get(ctx, textKey(contentHash, lang)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var m textModel
	if err := json.Unmarshal(data, &m); err != nil {
		// a corrupt entry is a miss; it is overwritten on the next save
		return nil, database.ErrNotFound
	}
	return &database.StoredText{
		ContentHash: contentHash,
		Language:    lang,
		Text:        m.Text,
		Extractor:   m.Extractor,
		CreatedAt:   m.CreatedAt,
	}, nil
}

func (s *TextStore) SaveText(ctx context.Context, t *database.StoredText) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	data, err := json.Marshal(textModel{Text: t.Text, Extractor: t.Extractor, CreatedAt: created})
	if err != nil {
		return fmt.Errorf("marshal text: %w", err)
	}
	if err := s.client.Set(ctx, textKey(t.ContentHash, t.Language), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// scanKeys calls fn with each batch of cache keys.
func (s *TextStore) scanKeys(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *TextStore) CountTexts(ctx context.Context) (int, error) {
	seen := make(map[string]struct{})
	err := s.scanKeys(ctx, func(keys []string) error {
		for _, k := range keys {
			seen[k] = struct{}{} // SCAN may return a key twice
		}
		return nil
	})
	return len(seen), err
}

func (s *TextStore) ClearTexts(ctx context.Context) (int, error) {
	removed := 0
	err := s.scanKeys(ctx, func(keys []string) error {
		n, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		removed += int(n)
		return nil
	})
	return removed, err
}
