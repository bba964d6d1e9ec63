package dedup

import (
	"fmt"
	"math"

	"github.com/kozaktomas/photo-dedup/internal/constants"
)

// Strategy selects how accepted pairs become groups.
type Strategy string

const (
	// StrategyAnchor matches each unvisited image against the images still
	// unvisited after it. Fast, but not transitive across anchors.
	StrategyAnchor Strategy = "anchor"
	// StrategyComponents evaluates all pairs and groups connected components.
	StrategyComponents Strategy = "components"
)

// Options configures one grouping run. It is not modified during the run.
type Options struct {
	// PHashThreshold is the maximum perceptual hash Hamming distance (0-64)
	PHashThreshold int `json:"phash_threshold" yaml:"phash_threshold"`

	// SemanticThreshold is the cosine similarity the semantic embeddings must exceed
	SemanticThreshold float64 `json:"semantic_threshold" yaml:"semantic_threshold"`

	// VisualThreshold is the cosine similarity the visual embeddings must exceed
	VisualThreshold float64 `json:"visual_threshold" yaml:"visual_threshold"`

	// TextThreshold is the minimum text similarity ratio (0-1)
	TextThreshold float64 `json:"text_threshold" yaml:"text_threshold"`

	// MinGroupSize is the smallest group that is reported
	MinGroupSize int `json:"min_group_size" yaml:"min_group_size"`

	// ClusterTrigger enables the scale reducer above this many images; <= 0 disables it
	ClusterTrigger int `json:"cluster_trigger" yaml:"cluster_trigger"`

	// Concurrency is the comparison pool width, clamped to 1-64
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// Language is the hint passed to the text extractor
	Language string `json:"language" yaml:"language"`

	// RecordRejected keeps every evaluated pair in Result.Decisions
	RecordRejected bool `json:"record_rejected" yaml:"record_rejected"`
}

// DefaultOptions returns the default preset.
func DefaultOptions() Options {
	return Options{
		PHashThreshold:    constants.DefaultPHashThreshold,
		SemanticThreshold: constants.DefaultSemanticThreshold,
		VisualThreshold:   constants.DefaultVisualThreshold,
		TextThreshold:     constants.DefaultTextThreshold,
		MinGroupSize:      constants.DefaultMinGroupSize,
		ClusterTrigger:    constants.DefaultClusterTrigger,
		Concurrency:       constants.DefaultWorkers,
		Strategy:          StrategyAnchor,
		Language:          constants.DefaultOCRLanguage,
	}
}

// Validate checks threshold and group-size bounds. The returned error is a
// *ConfigurationError.
func (o Options) Validate() error {
	if o.PHashThreshold < 0 || o.PHashThreshold > constants.MaxHashDistance {
		return &ConfigurationError{
			Field:  "phash_threshold",
			Reason: fmt.Sprintf("must be between 0 and %d (got %d)", constants.MaxHashDistance, o.PHashThreshold),
		}
	}
	if err := checkRange("semantic_threshold", o.SemanticThreshold, -1, 1); err != nil {
		return err
	}
	if err := checkRange("visual_threshold", o.VisualThreshold, -1, 1); err != nil {
		return err
	}
	if err := checkRange("text_threshold", o.TextThreshold, 0, 1); err != nil {
		return err
	}
	if o.MinGroupSize < 1 {
		return &ConfigurationError{
			Field:  "min_group_size",
			Reason: fmt.Sprintf("must be at least 1 (got %d)", o.MinGroupSize),
		}
	}
	switch o.Strategy {
	case "", StrategyAnchor, StrategyComponents:
	default:
		return &ConfigurationError{
			Field:  "strategy",
			Reason: fmt.Sprintf("unknown strategy %q (want %s or %s)", o.Strategy, StrategyAnchor, StrategyComponents),
		}
	}
	return nil
}

func checkRange(field string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return &ConfigurationError{
			Field:  field,
			Reason: fmt.Sprintf("must be between %.1f and %.1f (got %v)", lo, hi, v),
		}
	}
	return nil
}

// Workers returns Concurrency clamped to the supported range. Zero means the default.
func (o Options) Workers() int {
	if o.Concurrency == 0 {
		return constants.DefaultWorkers
	}
	return max(constants.MinWorkers, min(constants.MaxWorkers, o.Concurrency))
}

func (o Options) strategy() Strategy {
	if o.Strategy == "" {
		return StrategyAnchor
	}
	return o.Strategy
}

func (o Options) String() string {
	return fmt.Sprintf("Options{PHash: %d, Semantic: %.2f, Visual: %.2f, Text: %.2f, MinGroup: %d, Trigger: %d, Workers: %d, Strategy: %s}",
		o.PHashThreshold, o.SemanticThreshold, o.VisualThreshold, o.TextThreshold,
		o.MinGroupSize, o.ClusterTrigger, o.Workers(), o.strategy())
}
