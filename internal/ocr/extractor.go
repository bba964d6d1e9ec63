// Package ocr extracts text from images. Backends are tesseract (local CLI)
// and vision-capable LLMs (OpenAI, Gemini, Ollama, llama.cpp).
package ocr

import (
	"context"
	_ "embed"
	"strings"
	"sync"
)

//go:embed prompts/ocr.txt
var ocrPrompt string

// noTextMarker is what LLM backends answer for images without text.
const noTextMarker = "NO_TEXT"

// Extractor returns the text visible in an image. imageData is an encoded
// image (JPEG or PNG); lang is a tesseract language code such as "chi_sim"
// or "chi_sim+eng". An image without text yields "" and no error.
type Extractor interface {
	Name() string
	ExtractText(ctx context.Context, imageData []byte, lang string) (string, error)
}

// Usage tracks requests, token usage and cost.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// UsageReporter is implemented by extractors that call paid APIs.
type UsageReporter interface {
	GetUsage() Usage
	ResetUsage()
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker is embedded by extractors that count tokens. Extractions run
// concurrently, so updates are locked.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (u *usageTracker) trackUsage(inputTokens, outputTokens int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.Requests++
	u.usage.InputTokens += int(inputTokens)
	u.usage.OutputTokens += int(outputTokens)
	u.usage.TotalCost += float64(inputTokens) / 1_000_000 * u.pricing.Input
	u.usage.TotalCost += float64(outputTokens) / 1_000_000 * u.pricing.Output
}

func (u *usageTracker) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

func (u *usageTracker) ResetUsage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage = Usage{}
}

var languageNames = map[string]string{
	"chi_sim":      "Simplified Chinese",
	"chi_tra":      "Traditional Chinese",
	"chi_sim_vert": "Simplified Chinese (vertical)",
	"chi_tra_vert": "Traditional Chinese (vertical)",
	"eng":          "English",
	"jpn":          "Japanese",
	"kor":          "Korean",
	"ces":          "Czech",
}

// languageName turns a tesseract language code into words for an LLM prompt.
func languageName(lang string) string {
	if lang == "" {
		return "Simplified Chinese"
	}
	var names []string
	for _, code := range strings.Split(lang, "+") {
		if name, ok := languageNames[code]; ok {
			names = append(names, name)
		} else {
			names = append(names, code)
		}
	}
	return strings.Join(names, " or ")
}

// buildPrompt returns the extraction prompt for the given language.
func buildPrompt(lang string) string {
	return strings.ReplaceAll(ocrPrompt, "{{language}}", languageName(lang))
}

// cleanText normalizes an LLM answer: it strips code fences and maps the
// no-text marker to an empty string.
func cleanText(content string) string {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == noTextMarker {
		return ""
	}
	return text
}
