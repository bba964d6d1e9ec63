package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	Embedding EmbeddingConfig
	OCR       OCRConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	LlamaCpp  LlamaCppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Web       WebConfig
	Workers   int // comparison and feature-extraction width (default 8)
	Prices    PricesConfig
}

type EmbeddingConfig struct {
	URL        string // defaults to http://localhost:8000
	VisualPath string // defaults to /embed/visual
	Model      string // expected semantic model; cached features from other models are recomputed
}

type OCRConfig struct {
	Provider      string  // tesseract, openai, gemini, ollama, llamacpp, none (default tesseract)
	Language      string  // tesseract language code (default chi_sim)
	TesseractCmd  string  // defaults to tesseract from PATH
	RateLimit     float64 // requests per second for remote providers (0 = unlimited)
	GeminiBaseURL string
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to qwen2.5vl:7b
}

type LlamaCppConfig struct {
	URL   string // defaults to http://localhost:8080
	Model string // defaults to llava
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RedisConfig struct {
	Addr     string // host:port, empty disables the redis text cache
	Password string
	DB       int
	TTLHours int // text cache expiry (default 720)
}

type LogConfig struct {
	Level  string // debug, info, warn, error (default info)
	Format string // text or json (default text)
}

type WebConfig struct {
	AllowedOrigins string // comma-separated CORS whitelist; localhost is always allowed
	ImageRoot      string // when set, the API only reads folders below it
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for non-negative floats.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		Embedding: EmbeddingConfig{
			URL:        os.Getenv("EMBEDDING_URL"),
			VisualPath: os.Getenv("EMBEDDING_VISUAL_PATH"),
			Model:      os.Getenv("EMBEDDING_MODEL"),
		},
		OCR: OCRConfig{
			Provider:      strings.ToLower(envString("OCR_PROVIDER", "tesseract")),
			Language:      envString("OCR_LANGUAGE", "chi_sim"),
			TesseractCmd:  os.Getenv("TESSERACT_CMD"),
			RateLimit:     envFloat("OCR_RATE_LIMIT", 0),
			GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		LlamaCpp: LlamaCppConfig{
			URL:   os.Getenv("LLAMACPP_URL"),
			Model: os.Getenv("LLAMACPP_MODEL"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
			TTLHours: envInt("REDIS_TTL_HOURS", 720),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
		},
		Web: WebConfig{
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
			ImageRoot:      os.Getenv("IMAGE_ROOT"),
		},
		Workers: envInt("WORKERS", 8),
		Prices:  prices,
	}
}

// GetModelPricing returns pricing for a specific model, with fallback defaults
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	// Return zero pricing if model not found
	return ModelPricing{}
}
