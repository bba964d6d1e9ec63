package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// DefaultPreset is the preset used when none is named.
const DefaultPreset = "default"

// Preset is a named set of grouping thresholds.
type Preset struct {
	PHashThreshold    int     `json:"phash_threshold" yaml:"phash_threshold"`
	SemanticThreshold float64 `json:"semantic_threshold" yaml:"semantic_threshold"`
	VisualThreshold   float64 `json:"visual_threshold" yaml:"visual_threshold"`
	TextThreshold     float64 `json:"text_threshold" yaml:"text_threshold"`
	MinGroupSize      int     `json:"min_group_size" yaml:"min_group_size"`
	ClusterTrigger    int     `json:"cluster_trigger" yaml:"cluster_trigger"`
}

// Presets maps preset names to thresholds.
type Presets map[string]Preset

type presetsFile struct {
	Presets Presets `yaml:"presets"`
}

// ParsePresets decodes a presets document.
func ParsePresets(data []byte) (Presets, error) {
	var f presetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if f.Presets == nil {
		f.Presets = Presets{}
	}
	return f.Presets, nil
}

// LoadPresets returns the built-in presets, overlaid with the presets in path
// when path is non-empty. A preset in the file replaces a built-in preset of
// the same name.
func LoadPresets(path string) (Presets, error) {
	presets, err := ParsePresets(presetsYAML)
	if err != nil {
		// embedded file, never fails in practice
		return nil, err
	}
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset file: %w", err)
	}
	extra, err := ParsePresets(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for name, p := range extra {
		presets[name] = p
	}
	return presets, nil
}

// Get returns the named preset; the empty name selects DefaultPreset.
func (p Presets) Get(name string) (Preset, error) {
	if name == "" {
		name = DefaultPreset
	}
	preset, ok := p[strings.ToLower(name)]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(p.Names(), ", "))
	}
	return preset, nil
}

// Names returns the preset names sorted.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Options returns the default engine options with the preset's thresholds.
// A zero group size or cluster trigger keeps the default.
func (p Preset) Options() dedup.Options {
	opts := dedup.DefaultOptions()
	opts.PHashThreshold = p.PHashThreshold
	opts.SemanticThreshold = p.SemanticThreshold
	opts.VisualThreshold = p.VisualThreshold
	opts.TextThreshold = p.TextThreshold
	if p.MinGroupSize > 0 {
		opts.MinGroupSize = p.MinGroupSize
	}
	if p.ClusterTrigger > 0 {
		opts.ClusterTrigger = p.ClusterTrigger
	}
	return opts
}
