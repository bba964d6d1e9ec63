package cmd

import (
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/spf13/cobra"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetFloat64 gets a float64 flag value or panics if the flag doesn't exist.
func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	val, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// addThresholdFlags registers the flags shared by group and match.
func addThresholdFlags(cmd *cobra.Command) {
	cmd.Flags().String("preset", "", "Threshold preset (default, strict, lenient, or one from --preset-file)")
	cmd.Flags().String("preset-file", "", "YAML file with additional presets")
	cmd.Flags().Int("phash-threshold", 0, "Maximum perceptual hash distance in bits (0-64)")
	cmd.Flags().Float64("semantic-threshold", 0, "Semantic embedding similarity a pair must exceed")
	cmd.Flags().Float64("visual-threshold", 0, "Visual embedding similarity a pair must exceed")
	cmd.Flags().Float64("text-threshold", 0, "Minimum text similarity ratio (0-1)")
	cmd.Flags().Int("workers", 0, "Number of concurrent comparisons (default from WORKERS or 8)")
	cmd.Flags().String("lang", "", "OCR language hint, e.g. chi_sim or chi_sim+eng (default from OCR_LANGUAGE)")
	cmd.Flags().Bool("recursive", false, "Include images in subfolders")
}

// optionsFromFlags resolves the preset and applies the threshold flags the
// user set explicitly on top of it.
func optionsFromFlags(cmd *cobra.Command, workers int, lang string) (dedup.Options, error) {
	presets, err := config.LoadPresets(mustGetString(cmd, "preset-file"))
	if err != nil {
		return dedup.Options{}, err
	}
	preset, err := presets.Get(mustGetString(cmd, "preset"))
	if err != nil {
		return dedup.Options{}, err
	}

	opts := preset.Options()
	if workers > 0 {
		opts.Concurrency = workers
	}
	if lang != "" {
		opts.Language = lang
	}

	flags := cmd.Flags()
	if flags.Changed("phash-threshold") {
		opts.PHashThreshold = mustGetInt(cmd, "phash-threshold")
	}
	if flags.Changed("semantic-threshold") {
		opts.SemanticThreshold = mustGetFloat64(cmd, "semantic-threshold")
	}
	if flags.Changed("visual-threshold") {
		opts.VisualThreshold = mustGetFloat64(cmd, "visual-threshold")
	}
	if flags.Changed("text-threshold") {
		opts.TextThreshold = mustGetFloat64(cmd, "text-threshold")
	}
	if flags.Changed("workers") {
		opts.Concurrency = mustGetInt(cmd, "workers")
	}
	if flags.Changed("lang") {
		opts.Language = mustGetString(cmd, "lang")
	}
	if flags.Lookup("min-group-size") != nil && flags.Changed("min-group-size") {
		opts.MinGroupSize = mustGetInt(cmd, "min-group-size")
	}
	if flags.Lookup("cluster-trigger") != nil && flags.Changed("cluster-trigger") {
		opts.ClusterTrigger = mustGetInt(cmd, "cluster-trigger")
	}
	if flags.Lookup("strategy") != nil && flags.Changed("strategy") {
		opts.Strategy = dedup.Strategy(mustGetString(cmd, "strategy"))
	}
	if flags.Lookup("record-rejected") != nil {
		opts.RecordRejected = mustGetBool(cmd, "record-rejected")
	}

	if err := opts.Validate(); err != nil {
		return dedup.Options{}, err
	}
	return opts, nil
}
