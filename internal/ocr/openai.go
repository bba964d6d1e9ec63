package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAIModel = openai.ChatModelGPT4_1Mini

// OpenAIExtractor transcribes text with an OpenAI vision model.
type OpenAIExtractor struct {
	usageTracker
	client *openai.Client
}

// NewOpenAIExtractor creates an extractor. Extra request options (base URL,
// retries) are passed to the client.
func NewOpenAIExtractor(apiKey string, pricing RequestPricing, opts ...option.RequestOption) *OpenAIExtractor {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIExtractor{
		usageTracker: usageTracker{pricing: pricing},
		client:       &client,
	}
}

// Name returns the model name.
func (p *OpenAIExtractor) Name() string {
	return openAIModel
}

// ExtractText sends the image with the transcription prompt.
func (p *OpenAIExtractor) ExtractText(ctx context.Context, imageData []byte, lang string) (string, error) {
	imageURL := "data:" + mimeType(imageData) + ";base64," + base64.StdEncoding.EncodeToString(imageData)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openAIModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(buildPrompt(lang)),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "high",
							}),
						},
					},
				},
			},
		},
		MaxTokens: openai.Int(1000),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		p.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return cleanText(resp.Choices[0].Message.Content), nil
}

// mimeType sniffs JPEG and PNG; everything else is sent as JPEG.
func mimeType(data []byte) string {
	if len(data) >= 4 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return "image/png"
	}
	return "image/jpeg"
}
