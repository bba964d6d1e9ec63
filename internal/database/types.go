package database

import (
	"time"
)

// StoredFeatures is the cached feature extraction result for one file content.
// Paths are not stored: two files with the same bytes share one entry.
type StoredFeatures struct {
	ContentHash string
	Semantic    []float32
	Visual      []float32
	PHash       uint64
	DHash       uint64
	Model       string
	CreatedAt   time.Time
}

// StoredText is cached extracted text for one file content and language.
// Only successful extractions are stored; failures are retried next run.
type StoredText struct {
	ContentHash string
	Language    string
	Text        string
	Extractor   string
	CreatedAt   time.Time
}
