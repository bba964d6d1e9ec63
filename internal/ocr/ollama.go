package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "qwen2.5vl:7b"
)

// OllamaExtractor transcribes text with a vision model served by Ollama.
type OllamaExtractor struct {
	usageTracker
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaExtractor(baseURL, model string) *OllamaExtractor {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaExtractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (p *OllamaExtractor) Name() string {
	return p.model
}

// ollamaRequest represents a request to the Ollama chat API
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded images
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

// ollamaResponse represents a response from the Ollama chat API
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (p *OllamaExtractor) ExtractText(ctx context.Context, imageData []byte, lang string) (string, error) {
	reqBody := ollamaRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: buildPrompt(lang)},
			{Role: "user", Content: "Transcribe the text in this image.", Images: []string{base64.StdEncoding.EncodeToString(imageData)}},
		},
		Stream:  false,
		Options: ollamaOptions{NumPredict: 1000},
	}

	var resp ollamaResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/api/chat", reqBody, &resp); err != nil {
		return "", fmt.Errorf("ollama API error: %w", err)
	}

	// Ollama is free, but tokens are tracked for stats
	p.trackUsage(int64(resp.PromptEvalCount), int64(resp.EvalCount))
	return cleanText(resp.Message.Content), nil
}
