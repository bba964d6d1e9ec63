package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <query-image> <folder>",
	Short: "Find near-duplicates of one image in a folder",
	Long: `Find near-duplicates of one image in a folder.

The query image is compared against the images of the folder with the same
four stages as the group command. Accepted matches are listed best first,
ranked by the mean of their semantic and visual similarity.

With --candidates N only the N nearest semantic neighbours of the query are
evaluated in full. The neighbours come from an HNSW index, which can be saved
with --index and reused while the folder does not change.

Examples:
  # Compare against the 100 nearest images
  photo-dedup match ./query.jpg ./scans

  # Compare against every image, JSON output
  photo-dedup match ./query.jpg ./scans --candidates 0 --json`,
	Args: cobra.ExactArgs(2),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	addThresholdFlags(matchCmd)
	matchCmd.Flags().Int("candidates", constants.DefaultMatchCandidates, "Nearest neighbours to evaluate (0 = whole folder)")
	matchCmd.Flags().String("index", "", "File to save and reuse the HNSW index")
	matchCmd.Flags().Bool("record-rejected", false, "Include rejected pairs in the output")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
	matchCmd.Flags().Bool("no-progress", false, "Do not show progress bars")
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	opts, err := optionsFromFlags(cmd, cfg.Workers, cfg.OCR.Language)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, st, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	matchOpts := pipeline.MatchOptions{
		Query:      args[0],
		Folder:     args[1],
		Recursive:  mustGetBool(cmd, "recursive"),
		Dedup:      opts,
		Candidates: mustGetInt(cmd, "candidates"),
		IndexPath:  mustGetString(cmd, "index"),
	}
	var progress *progressReporter
	if !mustGetBool(cmd, "no-progress") {
		progress = newProgressReporter(os.Stderr)
		matchOpts.OnProgress = progress.Update
	}

	result, err := p.Match(ctx, matchOpts)
	progress.Finish()
	if err != nil {
		if pipeline.IsCanceled(err) {
			return fmt.Errorf("match canceled: %w", err)
		}
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printMatches(os.Stdout, result)
	return nil
}

func printMatches(w io.Writer, result *dedup.MatchResult) {
	color.New(color.FgCyan, color.Bold).Fprintf(w, "Matches for %s\n", result.Query)

	if len(result.Matches) == 0 {
		fmt.Fprintln(w, "No matches found.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tIMAGE\tSCORE\tHASH\tSEMANTIC\tVISUAL\tTEXT")
		for i, m := range result.Matches {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
				i+1, m.B, formatPercent(dedup.MatchScore(m)), m.HashDistance,
				formatPercent(m.Semantic), formatPercent(m.Visual), formatPercent(m.Text))
		}
		tw.Flush()
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		color.New(color.FgRed).Fprintf(w, "%d images could not be processed\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s [%s]: %s\n", e.Path, e.Kind, e.Message)
		}
	}

	fmt.Fprintf(w, "\nCompared %d images, %d matched\n", result.Stats.Comparisons, len(result.Matches))
}
