package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
)

// MatchOptions describes a one-to-many job: one query image against a folder.
type MatchOptions struct {
	Query      string
	Folder     string
	Recursive  bool
	Dedup      dedup.Options
	Candidates int    // nearest neighbours evaluated in full (0 = whole folder)
	IndexPath  string // optional file to persist the HNSW index between runs
	OnProgress func(ProgressInfo)
}

// Match compares the query image against every image of the folder, or
// against its nearest semantic neighbours when Candidates is set.
func (p *Pipeline) Match(ctx context.Context, opts MatchOptions) (*dedup.MatchResult, error) {
	if err := opts.Dedup.Validate(); err != nil {
		return nil, err
	}
	if opts.Query == "" {
		return nil, &dedup.ConfigurationError{Field: "query", Reason: "missing query image"}
	}
	if opts.Candidates < 0 {
		return nil, &dedup.ConfigurationError{Field: "candidates", Reason: "must not be negative"}
	}
	logger := p.logger.With("query", opts.Query)

	paths, err := p.scan(opts.Folder, opts.Recursive, opts.OnProgress)
	if err != nil {
		return nil, err
	}

	loader := p.loader(opts.Dedup, logger, opts.OnProgress)
	query, err := loader.LoadOne(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to load query image: %w", err)
	}
	loaded, err := loader.Load(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load features: %w", err)
	}

	candidates := loaded.Records
	if opts.Candidates > 0 && opts.Candidates < len(candidates) {
		candidates, err = p.nearest(query, candidates, opts, logger)
		if err != nil {
			return nil, err
		}
	}

	text, _ := p.textSource(opts.Dedup.Language, logger)
	engine, err := dedup.NewEngine(opts.Dedup, text,
		dedup.WithLogger(logger),
		dedup.WithProgress(progressFunc(opts.OnProgress, PhaseMatching)))
	if err != nil {
		return nil, err
	}
	res, err := engine.Match(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	res.Errors = append(res.Errors, loaded.Errors...)
	res.Stats.Images += len(loaded.Errors)
	res.Stats.Errored = len(res.Errors)
	p.logUsage(logger)
	return res, nil
}

// nearest narrows records to the query's nearest semantic neighbours.
func (p *Pipeline) nearest(query *dedup.ImageRecord, records []*dedup.ImageRecord, opts MatchOptions, logger *slog.Logger) ([]*dedup.ImageRecord, error) {
	byPath := make(map[string]*dedup.ImageRecord, len(records))
	items := make([]database.IndexedVector, 0, len(records))
	for _, rec := range records {
		byPath[rec.Path] = rec
		items = append(items, database.IndexedVector{Key: rec.Path, Vector: rec.Semantic})
	}

	index, err := loadOrBuildIndex(opts.IndexPath, items, logger)
	if err != nil {
		return nil, err
	}
	out, stale, err := searchIndex(index, query, byPath, opts.Candidates)
	if err != nil {
		return nil, err
	}
	if stale {
		// Keys unknown to this folder; the digest check normally catches this first.
		logger.Warn("saved HNSW index is stale, rebuilding", "path", opts.IndexPath)
		index = database.NewHNSWIndex()
		if err := index.Build(items); err != nil {
			return nil, fmt.Errorf("failed to build index: %w", err)
		}
		saveIndex(index, opts.IndexPath, logger)
		if out, _, err = searchIndex(index, query, byPath, opts.Candidates); err != nil {
			return nil, err
		}
	}
	if opts.OnProgress != nil {
		opts.OnProgress(ProgressInfo{Phase: PhaseIndexing, Current: index.Count(), Total: len(items)})
	}
	logger.Info("candidates selected", "indexed", index.Count(), "candidates", len(out))
	return out, nil
}

// searchIndex returns up to k records nearest to the query, excluding the
// query itself. stale is set when the index knows keys that records do not.
func searchIndex(index *database.HNSWIndex, query *dedup.ImageRecord, byPath map[string]*dedup.ImageRecord, k int) ([]*dedup.ImageRecord, bool, error) {
	// The query itself may be part of the folder; ask for one extra.
	keys, _, err := index.Search(query.Semantic, k+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to search index: %w", err)
	}
	out := make([]*dedup.ImageRecord, 0, len(keys))
	for _, key := range keys {
		rec, ok := byPath[key]
		if !ok {
			return nil, true, nil
		}
		if rec.Path == query.Path || len(out) == k {
			continue
		}
		out = append(out, rec)
	}
	return out, false, nil
}

// loadOrBuildIndex reuses the index saved at path when it was built from
// exactly these keys and vectors; otherwise it builds a fresh one and saves it.
func loadOrBuildIndex(path string, items []database.IndexedVector, logger *slog.Logger) (*database.HNSWIndex, error) {
	index := database.NewHNSWIndex()

	if path != "" {
		meta, err := database.LoadHNSWMetadata(path)
		switch {
		case err != nil:
			logger.Debug("no usable HNSW index metadata", "path", path, "error", err)
		case meta.Digest != database.VectorsDigest(items):
			logger.Info("saved HNSW index is out of date, rebuilding", "path", path, "count", meta.Count)
		default:
			err = index.Load(path)
			if err == nil {
				logger.Info("loaded HNSW index", "path", path, "count", meta.Count)
				return index, nil
			}
			logger.Warn("failed to load HNSW index, rebuilding", "path", path, "error", err)
		}
	}

	if err := index.Build(items); err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	saveIndex(index, path, logger)
	return index, nil
}

func saveIndex(index *database.HNSWIndex, path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := index.Save(filepath.Clean(path)); err != nil {
		logger.Warn("failed to save HNSW index", "path", path, "error", err)
	}
}
