package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultLlamaCppURL   = "http://localhost:8080"
	defaultLlamaCppModel = "llava"
)

// LlamaCppExtractor transcribes text with a llama.cpp server through its
// OpenAI-compatible API.
type LlamaCppExtractor struct {
	usageTracker
	parsedURL *url.URL
	model     string
	client    *http.Client
}

// NewLlamaCppExtractor creates a new llama.cpp extractor with the given config.
func NewLlamaCppExtractor(baseURL, model string) (*LlamaCppExtractor, error) {
	if baseURL == "" {
		baseURL = defaultLlamaCppURL
	}
	if model == "" {
		model = defaultLlamaCppModel
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid llama.cpp URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid llama.cpp URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid llama.cpp URL: missing host")
	}
	return &LlamaCppExtractor{
		parsedURL: parsed,
		model:     model,
		client:    &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Name returns the model name.
func (p *LlamaCppExtractor) Name() string {
	return p.model
}

// llamaCppRequest represents a request to the llama.cpp OpenAI-compatible API.
type llamaCppRequest struct {
	Model       string            `json:"model"`
	Messages    []llamaCppMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature"`
	Stream      bool              `json:"stream"`
}

type llamaCppMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []llamaCppContentPart
}

type llamaCppContentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *llamaCppImageURL `json:"image_url,omitempty"`
}

type llamaCppImageURL struct {
	URL string `json:"url"`
}

// llamaCppResponse represents a response from the llama.cpp OpenAI-compatible API.
type llamaCppResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ExtractText sends the image to llama.cpp with the transcription prompt.
func (p *LlamaCppExtractor) ExtractText(ctx context.Context, imageData []byte, lang string) (string, error) {
	imageURL := "data:" + mimeType(imageData) + ";base64," + base64.StdEncoding.EncodeToString(imageData)
	reqBody := llamaCppRequest{
		Model: p.model,
		Messages: []llamaCppMessage{
			{Role: "system", Content: buildPrompt(lang)},
			{
				Role: "user",
				Content: []llamaCppContentPart{
					{Type: "text", Text: "Transcribe the text in this image."},
					{Type: "image_url", ImageURL: &llamaCppImageURL{URL: imageURL}},
				},
			},
		},
		MaxTokens: 1000,
		Stream:    false,
	}

	var resp llamaCppResponse
	if err := postJSON(ctx, p.client, p.parsedURL.JoinPath("/v1/chat/completions").String(), reqBody, &resp); err != nil {
		return "", fmt.Errorf("llama.cpp API error: %w", err)
	}

	p.trackUsage(int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from llama.cpp")
	}
	return cleanText(resp.Choices[0].Message.Content), nil
}
