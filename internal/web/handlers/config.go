package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-dedup/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	OCRProvider  string         `json:"ocr_provider"`
	OCRLanguage  string         `json:"ocr_language"`
	Providers    []ProviderInfo `json:"providers"`
	EmbeddingURL string         `json:"embedding_url,omitempty"`
	FeatureCache string         `json:"feature_cache"`
	TextCache    string         `json:"text_cache"`
	Workers      int            `json:"workers"`
	ImageRoot    string         `json:"image_root,omitempty"`
}

// ProviderInfo represents information about an OCR provider
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Get returns the active configuration without secrets
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	providers := []ProviderInfo{
		{
			Name:      "tesseract",
			Available: true, // local binary, checked on first use
		},
		{
			Name:      "openai",
			Available: h.config.OpenAI.Token != "",
		},
		{
			Name:      "gemini",
			Available: h.config.Gemini.APIKey != "",
		},
		{
			Name:      "ollama",
			Available: true, // Always available (local)
		},
		{
			Name:      "llamacpp",
			Available: true, // Always available (local)
		},
	}

	featureCache, textCache := cacheBackends(h.config)
	response := ConfigResponse{
		OCRProvider:  h.config.OCR.Provider,
		OCRLanguage:  h.config.OCR.Language,
		Providers:    providers,
		EmbeddingURL: h.config.Embedding.URL,
		FeatureCache: featureCache,
		TextCache:    textCache,
		Workers:      h.config.Workers,
		ImageRoot:    h.config.Web.ImageRoot,
	}

	respondJSON(w, http.StatusOK, response)
}

// cacheBackends names the stores selected by the environment.
func cacheBackends(cfg *config.Config) (features, texts string) {
	features, texts = "memory", "memory"
	if cfg.Database.URL != "" {
		features, texts = "postgres", "postgres"
	}
	if cfg.Redis.Addr != "" {
		texts = "redis"
	}
	return features, texts
}
