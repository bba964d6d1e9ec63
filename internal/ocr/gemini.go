package ocr

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiExtractor transcribes text with a Gemini model.
type GeminiExtractor struct {
	usageTracker
	client *genai.Client
}

// NewGeminiExtractor creates an extractor. baseURL overrides the API endpoint
// when non-empty.
func NewGeminiExtractor(ctx context.Context, apiKey, baseURL string, pricing RequestPricing) (*GeminiExtractor, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiExtractor{
		usageTracker: usageTracker{pricing: pricing},
		client:       client,
	}, nil
}

// Name returns the model name.
func (p *GeminiExtractor) Name() string {
	return geminiModel
}

// ExtractText sends the image with the transcription prompt.
func (p *GeminiExtractor) ExtractText(ctx context.Context, imageData []byte, lang string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(lang)},
				{InlineData: &genai.Blob{Data: imageData, MIMEType: mimeType(imageData)}},
			},
		},
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	if result.UsageMetadata != nil {
		p.trackUsage(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
	}
	return cleanText(result.Text()), nil
}
