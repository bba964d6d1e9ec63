package features

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
	"github.com/kozaktomas/photo-dedup/internal/ocr"
	"golang.org/x/sync/singleflight"
)

// TextCache is the dedup.TextSource of one run. Each image is extracted at
// most once: concurrent requests for the same image share one extraction and
// the outcome, failure included, is memoized by path. Successful extractions
// are also written to an optional persistent store keyed by content hash and
// reused only by the extractor that produced them.
type TextCache struct {
	extractor ocr.Extractor
	lang      string
	store     database.TextStore
	logger    *slog.Logger

	group   singleflight.Group
	mu      sync.Mutex
	results map[string]textResult

	extracted atomic.Int64
	storeHits atomic.Int64
}

type textResult struct {
	text string
	err  error
}

// TextCacheOption configures a TextCache.
type TextCacheOption func(*TextCache)

// WithTextStore persists extracted text in store.
func WithTextStore(store database.TextStore) TextCacheOption {
	return func(c *TextCache) { c.store = store }
}

// WithTextLogger sets the logger.
func WithTextLogger(logger *slog.Logger) TextCacheOption {
	return func(c *TextCache) { c.logger = logger }
}

// NewTextCache creates a text source that extracts lang text with extractor.
func NewTextCache(extractor ocr.Extractor, lang string, opts ...TextCacheOption) *TextCache {
	if lang == "" {
		lang = constants.DefaultOCRLanguage
	}
	c := &TextCache{
		extractor: extractor,
		lang:      lang,
		logger:    slog.New(slog.DiscardHandler),
		results:   make(map[string]textResult),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Text implements dedup.TextSource.
func (c *TextCache) Text(ctx context.Context, rec *dedup.ImageRecord) (string, error) {
	c.mu.Lock()
	r, ok := c.results[rec.Path]
	c.mu.Unlock()
	if ok {
		return r.text, r.err
	}

	v, err, _ := c.group.Do(rec.Path, func() (any, error) {
		c.mu.Lock()
		r, ok := c.results[rec.Path]
		c.mu.Unlock()
		if ok {
			return r.text, r.err
		}
		text, err := c.extract(ctx, rec)
		if isContextErr(err) {
			// not memoized: a later run of the same cache may retry
			return "", err
		}
		c.mu.Lock()
		c.results[rec.Path] = textResult{text: text, err: err}
		c.mu.Unlock()
		return text, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *TextCache) extract(ctx context.Context, rec *dedup.ImageRecord) (string, error) {
	if text, ok := c.lookup(ctx, rec); ok {
		c.storeHits.Add(1)
		return text, nil
	}

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return "", &dedup.DecodeError{Path: rec.Path, Err: err}
	}
	img, err := DecodeImage(data)
	if err != nil {
		return "", &dedup.DecodeError{Path: rec.Path, Err: err}
	}
	resized, err := fingerprint.ResizeImage(img, constants.OCRImageSize)
	if err != nil {
		return "", &dedup.ExtractionFailure{Path: rec.Path, Err: err}
	}

	text, err := c.extractor.ExtractText(ctx, resized, c.lang)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		c.logger.Warn("text extraction failed", "path", rec.Path, "extractor", c.extractor.Name(), "error", err)
		return "", &dedup.ExtractionFailure{Path: rec.Path, Err: err}
	}
	c.extracted.Add(1)
	c.logger.Debug("text extracted", "path", rec.Path, "chars", len([]rune(text)))

	if c.store != nil && rec.ContentHash != "" {
		err := c.store.SaveText(ctx, &database.StoredText{
			ContentHash: rec.ContentHash,
			Language:    c.lang,
			Text:        text,
			Extractor:   c.extractor.Name(),
		})
		if err != nil {
			c.logger.Warn("text cache write failed", "path", rec.Path, "error", err)
		}
	}
	return text, nil
}

func (c *TextCache) lookup(ctx context.Context, rec *dedup.ImageRecord) (string, bool) {
	if c.store == nil || rec.ContentHash == "" {
		return "", false
	}
	t, err := c.store.GetText(ctx, rec.ContentHash, c.lang)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			c.logger.Warn("text cache read failed", "path", rec.Path, "error", err)
		}
		return "", false
	}
	// Entries are keyed by content and language only; text read by another
	// OCR engine is a miss and gets replaced by this run's extraction.
	if t.Extractor != c.extractor.Name() {
		c.logger.Debug("cached text from another extractor", "path", rec.Path,
			"cached", t.Extractor, "extractor", c.extractor.Name())
		return "", false
	}
	return t.Text, true
}

// Failures lists the images whose extraction failed, sorted by path.
func (c *TextCache) Failures() []dedup.ImageError {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []dedup.ImageError
	for path, r := range c.results {
		var failure *dedup.ExtractionFailure
		if errors.As(r.err, &failure) {
			out = append(out, dedup.NewImageError(path, r.err))
		}
	}
	slices.SortFunc(out, func(a, b dedup.ImageError) int { return cmp.Compare(a.Path, b.Path) })
	return out
}

// TextStats counts what the cache did.
type TextStats struct {
	Extracted int `json:"extracted"`
	StoreHits int `json:"store_hits"`
	Failed    int `json:"failed"`
}

// Stats returns extraction counters.
func (c *TextCache) Stats() TextStats {
	return TextStats{
		Extracted: int(c.extracted.Load()),
		StoreHits: int(c.storeHits.Load()),
		Failed:    len(c.Failures()),
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
