// Package features turns image files into dedup.ImageRecords: it reads and
// decodes each file once, computes perceptual hashes and embeddings, and
// caches the result by content hash.
package features

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
	"golang.org/x/sync/errgroup"
)

// Embedder computes the semantic and visual embeddings of an encoded image.
type Embedder interface {
	Embed(ctx context.Context, imageData []byte) (*fingerprint.Features, error)
}

// Loader computes ImageRecords for image files.
type Loader struct {
	embedder Embedder
	store    database.FeatureStore
	workers  int
	logger   *slog.Logger
	progress dedup.ProgressFunc
	model    string

	// seenModel is the model the embedder reported first, used when no
	// model was configured.
	seenModel atomic.Pointer[string]
	cacheHits atomic.Int64
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithStore caches features in store.
func WithStore(store database.FeatureStore) LoaderOption {
	return func(l *Loader) { l.store = store }
}

// WithWorkers sets the number of images processed concurrently.
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) { l.workers = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithModel names the embedding model cached features must come from.
// Without it the loader trusts the first model the embedder reports.
func WithModel(model string) LoaderOption {
	return func(l *Loader) { l.model = model }
}

// WithProgress reports each finished image.
func WithProgress(fn dedup.ProgressFunc) LoaderOption {
	return func(l *Loader) { l.progress = fn }
}

// NewLoader creates a loader that uses embedder for uncached images.
func NewLoader(embedder Embedder, opts ...LoaderOption) *Loader {
	l := &Loader{
		embedder: embedder,
		workers:  constants.DefaultWorkers,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.workers = min(max(l.workers, constants.MinWorkers), constants.MaxWorkers)
	return l
}

// LoadResult holds the records that loaded and the images that did not.
type LoadResult struct {
	Records   []*dedup.ImageRecord // in input order
	Errors    []dedup.ImageError
	CacheHits int
}

// Load computes records for paths. Per-image failures end up in
// LoadResult.Errors; only cancellation aborts the whole load.
func (l *Loader) Load(ctx context.Context, paths []string) (*LoadResult, error) {
	records := make([]*dedup.ImageRecord, len(paths))
	errs := make([]error, len(paths))
	hitsBefore := l.cacheHits.Load()

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range paths {
		g.Go(func() error {
			rec, err := l.LoadOne(gctx, path)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			records[i], errs[i] = rec, err
			if l.progress != nil {
				l.progress(int(done.Add(1)), len(paths))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &LoadResult{CacheHits: int(l.cacheHits.Load() - hitsBefore)}
	for i, rec := range records {
		if errs[i] != nil {
			l.logger.Warn("image skipped", "path", paths[i], "error", errs[i])
			res.Errors = append(res.Errors, dedup.NewImageError(paths[i], errs[i]))
			continue
		}
		res.Records = append(res.Records, rec)
	}
	l.logger.Info("features loaded",
		"images", len(paths),
		"loaded", len(res.Records),
		"errors", len(res.Errors),
		"cache_hits", res.CacheHits)
	return res, nil
}

// LoadOne computes the record for one file. Unreadable or undecodable files
// return *dedup.DecodeError.
func (l *Loader) LoadOne(ctx context.Context, path string) (*dedup.ImageRecord, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the scanned folder
	if err != nil {
		return nil, &dedup.DecodeError{Path: path, Err: err}
	}
	contentHash := ContentHash(data)

	if cached := l.cached(ctx, contentHash); cached != nil {
		l.cacheHits.Add(1)
		return &dedup.ImageRecord{
			Path:        path,
			Semantic:    cached.Semantic,
			Visual:      cached.Visual,
			PHash:       cached.PHash,
			DHash:       cached.DHash,
			ContentHash: contentHash,
		}, nil
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, &dedup.DecodeError{Path: path, Err: err}
	}
	hashes := fingerprint.HashImage(img)

	resized, err := fingerprint.ResizeImage(img, constants.MaxImageSize)
	if err != nil {
		return nil, &dedup.DecodeError{Path: path, Err: err}
	}
	feats, err := l.embedder.Embed(ctx, resized)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", path, err)
	}
	if len(feats.Semantic) == 0 || len(feats.Visual) == 0 {
		return nil, fmt.Errorf("embed %s: empty embedding", path)
	}
	if feats.Model != "" {
		if l.model != "" && feats.Model != l.model {
			l.logger.Warn("embedding server reports another model", "expected", l.model, "model", feats.Model)
		}
		l.seenModel.CompareAndSwap(nil, &feats.Model)
	}

	if l.store != nil {
		err := l.store.SaveFeatures(ctx, &database.StoredFeatures{
			ContentHash: contentHash,
			Semantic:    feats.Semantic,
			Visual:      feats.Visual,
			PHash:       hashes.PHashBits,
			DHash:       hashes.DHashBits,
			Model:       feats.Model,
		})
		if err != nil {
			l.logger.Warn("feature cache write failed", "path", path, "error", err)
		}
	}

	return &dedup.ImageRecord{
		Path:        path,
		Semantic:    feats.Semantic,
		Visual:      feats.Visual,
		PHash:       hashes.PHashBits,
		DHash:       hashes.DHashBits,
		ContentHash: contentHash,
	}, nil
}

// cached returns usable cached features, or nil.
func (l *Loader) cached(ctx context.Context, contentHash string) *database.StoredFeatures {
	if l.store == nil {
		return nil
	}
	f, err := l.store.GetFeatures(ctx, contentHash)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			l.logger.Warn("feature cache read failed", "content_hash", contentHash, "error", err)
		}
		return nil
	}
	if len(f.Semantic) == 0 || len(f.Visual) == 0 {
		return nil
	}
	if want := l.expectedModel(); want != "" && f.Model != want {
		l.logger.Debug("cached features from another model", "content_hash", contentHash,
			"cached", f.Model, "model", want)
		return nil
	}
	return f
}

// expectedModel is the configured model, else the first one reported, else "".
func (l *Loader) expectedModel() string {
	if l.model != "" {
		return l.model
	}
	if m := l.seenModel.Load(); m != nil {
		return *m
	}
	return ""
}

// ContentHash is the hex sha256 of file bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DecodeImage decodes image bytes and applies the EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fingerprint.ErrDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image bounds", fingerprint.ErrDecode)
	}
	return img, nil
}

// ScanFolder lists image files in dir with a supported extension, sorted by
// path. Hidden files and directories are skipped.
func ScanFolder(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scan folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan folder: %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".") && path != dir
		if d.IsDir() {
			if path != dir && (hidden || !recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() || !IsSupported(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan folder: %w", err)
	}
	slices.Sort(paths)
	return paths, nil
}

// IsSupported reports whether path has a supported image extension.
func IsSupported(path string) bool {
	return slices.Contains(constants.SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}
