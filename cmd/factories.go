package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/database/postgres"
	"github.com/kozaktomas/photo-dedup/internal/database/redis"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
	"github.com/kozaktomas/photo-dedup/internal/ocr"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
)

// remoteOCRBurst is the token bucket size for rate-limited OCR providers.
const remoteOCRBurst = 4

// newExtractor creates the text extractor named by OCR_PROVIDER.
// "none" disables the text stage and returns a nil extractor.
func newExtractor(ctx context.Context, cfg *config.Config) (ocr.Extractor, error) {
	switch cfg.OCR.Provider {
	case "", "tesseract":
		return ocr.NewTesseractExtractor(cfg.OCR.TesseractCmd), nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required")
		}
		pricing := cfg.GetModelPricing("gpt-4.1-mini")
		extractor := ocr.NewOpenAIExtractor(cfg.OpenAI.Token,
			ocr.RequestPricing{Input: pricing.Standard.Input, Output: pricing.Standard.Output})
		return ocr.NewRateLimited(extractor, cfg.OCR.RateLimit, remoteOCRBurst), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
		pricing := cfg.GetModelPricing("gemini-2.5-flash")
		extractor, err := ocr.NewGeminiExtractor(ctx, cfg.Gemini.APIKey, cfg.OCR.GeminiBaseURL,
			ocr.RequestPricing{Input: pricing.Standard.Input, Output: pricing.Standard.Output})
		if err != nil {
			return nil, err
		}
		return ocr.NewRateLimited(extractor, cfg.OCR.RateLimit, remoteOCRBurst), nil
	case "ollama":
		return ocr.NewRateLimited(ocr.NewOllamaExtractor(cfg.Ollama.URL, cfg.Ollama.Model),
			cfg.OCR.RateLimit, remoteOCRBurst), nil
	case "llamacpp":
		extractor, err := ocr.NewLlamaCppExtractor(cfg.LlamaCpp.URL, cfg.LlamaCpp.Model)
		if err != nil {
			return nil, err
		}
		return ocr.NewRateLimited(extractor, cfg.OCR.RateLimit, remoteOCRBurst), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown OCR provider: %s (supported: tesseract, openai, gemini, ollama, llamacpp, none)", cfg.OCR.Provider)
	}
}

// stores holds the persistent caches selected by the environment.
type stores struct {
	features database.FeatureStore
	texts    database.TextStore
	closers  []func() error
}

func (s *stores) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}
}

// openStores selects the cache backends. PostgreSQL holds features and text
// when DATABASE_URL is set; Redis takes over the text cache when REDIS_ADDR is
// set. Anything left unconfigured lives in memory for the process lifetime.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}
	memory := database.NewMemoryStore()
	s.features = memory
	s.texts = memory

	if cfg.Database.URL != "" {
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		s.features = postgres.NewFeatureRepository(pool)
		s.texts = postgres.NewTextRepository(pool)
		slog.Debug("using PostgreSQL feature cache")
	}

	if cfg.Redis.Addr != "" {
		textStore, err := redis.NewTextStore(ctx, &cfg.Redis)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, textStore.Close)
		s.texts = textStore
		slog.Debug("using Redis text cache", "addr", cfg.Redis.Addr)
	}
	return s, nil
}

// newPipeline wires the embedding client, text extractor and caches.
func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, *stores, error) {
	extractor, err := newExtractor(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	p := pipeline.New(
		fingerprint.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.VisualPath),
		extractor,
		pipeline.WithFeatureStore(st.features),
		pipeline.WithTextStore(st.texts),
		pipeline.WithEmbeddingModel(cfg.Embedding.Model),
		pipeline.WithLanguage(cfg.OCR.Language),
		pipeline.WithLogger(slog.Default()),
	)
	return p, st, nil
}
