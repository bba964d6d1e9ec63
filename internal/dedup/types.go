package dedup

import "context"

// ImageRecord holds everything computed once per image. Records are shared
// read-only by all comparison workers.
type ImageRecord struct {
	Path        string    `json:"path"`
	Semantic    []float32 `json:"-"`
	Visual      []float32 `json:"-"`
	PHash       uint64    `json:"phash"`
	DHash       uint64    `json:"dhash"`
	ContentHash string    `json:"content_hash,omitempty"`
}

// Stage names the evaluation stage that decided a pair.
type Stage string

const (
	StageHash     Stage = "hash"
	StageSemantic Stage = "semantic"
	StageVisual   Stage = "visual"
	StageText     Stage = "text"
	StageAccepted Stage = "accepted"
)

// PairDecision is the outcome of comparing two images. Scores of stages that
// did not run are zero; Stage tells how far the evaluation got.
type PairDecision struct {
	A            string  `json:"image_a"`
	B            string  `json:"image_b"`
	HashDistance int     `json:"hash_distance"`
	Semantic     float64 `json:"semantic_score"`
	Visual       float64 `json:"visual_score"`
	Text         float64 `json:"text_score"`
	Stage        Stage   `json:"stage"`
	Accepted     bool    `json:"accepted"`
}

// SimilarityGroup is a set of images joined through accepted pairs.
type SimilarityGroup struct {
	ID      int      `json:"id"`
	Anchor  string   `json:"anchor"`
	Members []string `json:"members"` // sorted
}

// ImageError is one errored image in a result.
type ImageError struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Stats counts what a run did.
type Stats struct {
	Images           int  `json:"images"`
	Comparisons      int  `json:"comparisons"`
	HashRejected     int  `json:"hash_rejected"`
	SemanticRejected int  `json:"semantic_rejected"`
	VisualRejected   int  `json:"visual_rejected"`
	TextRejected     int  `json:"text_rejected"`
	Accepted         int  `json:"accepted"`
	Groups           int  `json:"groups"`
	Grouped          int  `json:"grouped"`
	Ungrouped        int  `json:"ungrouped"`
	Errored          int  `json:"errored"`
	Reduced          bool `json:"reduced"`
}

func (s *Stats) count(d PairDecision) {
	s.Comparisons++
	switch d.Stage {
	case StageHash:
		s.HashRejected++
	case StageSemantic:
		s.SemanticRejected++
	case StageVisual:
		s.VisualRejected++
	case StageText:
		s.TextRejected++
	case StageAccepted:
		s.Accepted++
	}
}

// Result is the outcome of Engine.Group.
type Result struct {
	Groups    []SimilarityGroup `json:"groups"`
	Scores    []PairDecision    `json:"scores"`              // accepted pairs
	Decisions []PairDecision    `json:"decisions,omitempty"` // every evaluated pair, if requested
	Ungrouped []string          `json:"ungrouped"`
	Errors    []ImageError      `json:"errors"`
	Order     []string          `json:"-"` // iteration order used
	Stats     Stats             `json:"stats"`
}

// TextSource returns the text extracted from an image. Implementations cache
// the text so that each image is extracted at most once per run, and must be
// safe for concurrent use. A failed extraction is reported as
// *ExtractionFailure; an unreadable image as *DecodeError.
type TextSource interface {
	Text(ctx context.Context, rec *ImageRecord) (string, error)
}

// NoText is a TextSource for runs without a text extractor. Every image has
// empty text, so the text stage always passes.
type NoText struct{}

func (NoText) Text(context.Context, *ImageRecord) (string, error) { return "", nil }

// ProgressFunc is called by the orchestrator after each anchor (or, for the
// components strategy, after each evaluated row) with the number of images
// settled so far.
type ProgressFunc func(done, total int)
