package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultSemanticPath = "/embed/image"
	defaultVisualPath   = "/embed/visual"
)

// EmbeddingClient computes semantic and visual-feature embeddings using the embedding server.
// It holds no model state of its own; one client is built per run and shared by all workers.
type EmbeddingClient struct {
	baseURL      string
	semanticPath string
	visualPath   string
	client       *http.Client
}

// NewEmbeddingClient creates a new embedding client. Empty arguments fall back to defaults.
func NewEmbeddingClient(baseURL, visualPath string) *EmbeddingClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if visualPath == "" {
		visualPath = defaultVisualPath
	}
	if !strings.HasPrefix(visualPath, "/") {
		visualPath = "/" + visualPath
	}
	return &EmbeddingClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		semanticPath: defaultSemanticPath,
		visualPath:   visualPath,
		client:       &http.Client{Timeout: 2 * time.Minute},
	}
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *EmbeddingClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func (c *EmbeddingClient) embed(ctx context.Context, endpoint string, imageData []byte) (*embeddingResponse, error) {
	body, err := c.postMultipartImage(ctx, endpoint, imageData)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if embResp.Dim != 0 && embResp.Dim != len(embResp.Embedding) {
		return nil, fmt.Errorf("embedding dim mismatch: header %d, vector %d", embResp.Dim, len(embResp.Embedding))
	}
	return &embResp, nil
}

// Embed computes the semantic and visual-feature embeddings of one image.
func (c *EmbeddingClient) Embed(ctx context.Context, imageData []byte) (*Features, error) {
	semantic, err := c.embed(ctx, c.semanticPath, imageData)
	if err != nil {
		return nil, fmt.Errorf("semantic embedding: %w", err)
	}
	visual, err := c.embed(ctx, c.visualPath, imageData)
	if err != nil {
		return nil, fmt.Errorf("visual embedding: %w", err)
	}
	return &Features{
		Semantic: semantic.Embedding,
		Visual:   visual.Embedding,
		Model:    semantic.Model,
	}, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
