// Package pipeline runs a whole grouping or matching job over a folder:
// scan, load features, extract text on demand, group, and report.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/features"
	"github.com/kozaktomas/photo-dedup/internal/ocr"
)

// Progress phases
const (
	PhaseScanning = "scanning"
	PhaseLoading  = "loading"
	PhaseGrouping = "grouping"
	PhaseMatching = "matching"
	PhaseIndexing = "indexing"
)

// ProgressInfo contains progress information for callbacks
type ProgressInfo struct {
	Phase   string `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Pipeline wires the feature loader, the text cache and the grouping engine.
// It is safe to run several jobs on one Pipeline at once.
type Pipeline struct {
	embedder  features.Embedder
	extractor ocr.Extractor
	language  string
	model     string
	features  database.FeatureStore
	texts     database.TextStore
	logger    *slog.Logger
}

type Option func(*Pipeline)

// WithFeatureStore caches embeddings and hashes across runs.
func WithFeatureStore(store database.FeatureStore) Option {
	return func(p *Pipeline) { p.features = store }
}

// WithTextStore caches extracted text across runs.
func WithTextStore(store database.TextStore) Option {
	return func(p *Pipeline) { p.texts = store }
}

// WithEmbeddingModel makes cached features from any other model a cache miss.
func WithEmbeddingModel(model string) Option {
	return func(p *Pipeline) { p.model = model }
}

// WithLanguage sets the OCR language hint used when a run does not name one.
func WithLanguage(lang string) Option {
	return func(p *Pipeline) { p.language = lang }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline. A nil extractor disables the text stage: every
// image then has empty text and the stage always passes.
func New(embedder features.Embedder, extractor ocr.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		embedder:  embedder,
		extractor: extractor,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extractor returns the configured text extractor, or nil.
func (p *Pipeline) Extractor() ocr.Extractor {
	return p.extractor
}

// RunOptions describes one grouping job.
type RunOptions struct {
	Folder     string
	Recursive  bool
	Dedup      dedup.Options
	RunID      string             // generated when empty
	OnProgress func(ProgressInfo) // Optional progress callback for web UI
}

// Run groups the images of a folder and returns the report.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*dedup.Report, error) {
	startedAt := time.Now()
	if err := opts.Dedup.Validate(); err != nil {
		return nil, err
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := p.logger.With("run_id", opts.RunID)

	paths, err := p.scan(opts.Folder, opts.Recursive, opts.OnProgress)
	if err != nil {
		return nil, err
	}

	loaded, err := p.loader(opts.Dedup, logger, opts.OnProgress).Load(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load features: %w", err)
	}

	text, textCache := p.textSource(opts.Dedup.Language, logger)
	engine, err := dedup.NewEngine(opts.Dedup, text,
		dedup.WithLogger(logger),
		dedup.WithProgress(progressFunc(opts.OnProgress, PhaseGrouping)))
	if err != nil {
		return nil, err
	}
	res, err := engine.Group(ctx, loaded.Records)
	if err != nil {
		return nil, err
	}

	report := dedup.NewReport(opts.RunID, opts.Folder, opts.Dedup, res, loaded.Errors, startedAt)
	if textCache != nil {
		report.Warnings = textCache.Failures()
		stats := textCache.Stats()
		logger.Info("text extraction",
			"extracted", stats.Extracted,
			"store_hits", stats.StoreHits,
			"failed", stats.Failed)
	}
	p.logUsage(logger)
	return report, nil
}

func (p *Pipeline) scan(folder string, recursive bool, onProgress func(ProgressInfo)) ([]string, error) {
	if folder == "" {
		return nil, &dedup.ConfigurationError{Field: "folder", Reason: "missing image folder"}
	}
	paths, err := features.ScanFolder(folder, recursive)
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(ProgressInfo{
			Phase:   PhaseScanning,
			Current: len(paths),
			Total:   len(paths),
			Message: fmt.Sprintf("found %d images", len(paths)),
		})
	}
	return paths, nil
}

func (p *Pipeline) loader(opts dedup.Options, logger *slog.Logger, onProgress func(ProgressInfo)) *features.Loader {
	loaderOpts := []features.LoaderOption{
		features.WithWorkers(opts.Workers()),
		features.WithLogger(logger),
		features.WithProgress(progressFunc(onProgress, PhaseLoading)),
		features.WithModel(p.model),
	}
	if p.features != nil {
		loaderOpts = append(loaderOpts, features.WithStore(p.features))
	}
	return features.NewLoader(p.embedder, loaderOpts...)
}

// textSource returns the run's text source and, when text is extracted, the
// cache behind it.
func (p *Pipeline) textSource(lang string, logger *slog.Logger) (dedup.TextSource, *features.TextCache) {
	if p.extractor == nil {
		return dedup.NoText{}, nil
	}
	cacheOpts := []features.TextCacheOption{features.WithTextLogger(logger)}
	if p.texts != nil {
		cacheOpts = append(cacheOpts, features.WithTextStore(p.texts))
	}
	cache := features.NewTextCache(p.extractor, cmp.Or(lang, p.language), cacheOpts...)
	return cache, cache
}

func (p *Pipeline) logUsage(logger *slog.Logger) {
	reporter, ok := p.extractor.(ocr.UsageReporter)
	if !ok {
		return
	}
	usage := reporter.GetUsage()
	if usage.Requests == 0 {
		return
	}
	logger.Info("ocr usage",
		"requests", usage.Requests,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cost_usd", fmt.Sprintf("%.4f", usage.TotalCost))
}

func progressFunc(onProgress func(ProgressInfo), phase string) dedup.ProgressFunc {
	if onProgress == nil {
		return nil
	}
	return func(done, total int) {
		onProgress(ProgressInfo{Phase: phase, Current: done, Total: total})
	}
}

// IsCanceled reports whether err means the job was stopped by its context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
