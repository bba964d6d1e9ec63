package dedup

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions_Valid(t *testing.T) {
	opts := DefaultOptions()

	require.NoError(t, opts.Validate())
	assert.Equal(t, 30, opts.PHashThreshold)
	assert.Equal(t, 0.85, opts.SemanticThreshold)
	assert.Equal(t, 0.85, opts.VisualThreshold)
	assert.Equal(t, 0.7, opts.TextThreshold)
	assert.Equal(t, 2, opts.MinGroupSize)
	assert.Equal(t, 200, opts.ClusterTrigger)
	assert.Equal(t, StrategyAnchor, opts.Strategy)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Options)
		wantField string
	}{
		{"negative phash", func(o *Options) { o.PHashThreshold = -1 }, "phash_threshold"},
		{"phash above bits", func(o *Options) { o.PHashThreshold = 65 }, "phash_threshold"},
		{"phash at max", func(o *Options) { o.PHashThreshold = 64 }, ""},
		{"semantic above one", func(o *Options) { o.SemanticThreshold = 1.01 }, "semantic_threshold"},
		{"semantic below minus one", func(o *Options) { o.SemanticThreshold = -1.5 }, "semantic_threshold"},
		{"semantic NaN", func(o *Options) { o.SemanticThreshold = math.NaN() }, "semantic_threshold"},
		{"semantic exactly one", func(o *Options) { o.SemanticThreshold = 1 }, ""},
		{"visual above one", func(o *Options) { o.VisualThreshold = 2 }, "visual_threshold"},
		{"text negative", func(o *Options) { o.TextThreshold = -0.1 }, "text_threshold"},
		{"text zero", func(o *Options) { o.TextThreshold = 0 }, ""},
		{"min group zero", func(o *Options) { o.MinGroupSize = 0 }, "min_group_size"},
		{"min group one", func(o *Options) { o.MinGroupSize = 1 }, ""},
		{"unknown strategy", func(o *Options) { o.Strategy = "dbscan" }, "strategy"},
		{"empty strategy", func(o *Options) { o.Strategy = "" }, ""},
		{"negative trigger disables reducer", func(o *Options) { o.ClusterTrigger = -5 }, ""},
		{"huge concurrency is clamped", func(o *Options) { o.Concurrency = 500 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)

			err := opts.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.wantField, cfgErr.Field)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestOptions_Workers(t *testing.T) {
	tests := []struct {
		concurrency int
		want        int
	}{
		{0, 8},
		{-3, 1},
		{1, 1},
		{16, 16},
		{64, 64},
		{65, 64},
		{10000, 64},
	}

	for _, tt := range tests {
		opts := Options{Concurrency: tt.concurrency}
		assert.Equal(t, tt.want, opts.Workers(), "concurrency %d", tt.concurrency)
	}
}
