package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var groupCmd = &cobra.Command{
	Use:   "group <folder>",
	Short: "Group near-duplicate images in a folder",
	Long: `Group near-duplicate images in a folder.

Every image is fingerprinted once (perceptual hash, semantic and visual
embeddings). Pairs then pass through four stages in order: hash distance gate,
semantic similarity, visual similarity and text similarity. Text is only
extracted for pairs that reach the last stage.

Thresholds come from a preset and can be overridden one by one.

Examples:
  # Group with the default preset
  photo-dedup group ./scans

  # Stricter thresholds, JSON report written to a file
  photo-dedup group ./scans --preset strict --output report.json

  # Lower the text threshold only
  photo-dedup group ./scans --text-threshold 0.5`,
	Args: cobra.ExactArgs(1),
	RunE: runGroup,
}

func init() {
	rootCmd.AddCommand(groupCmd)

	addThresholdFlags(groupCmd)
	groupCmd.Flags().Int("min-group-size", 0, "Smallest group to report")
	groupCmd.Flags().Int("cluster-trigger", 0, "Run the clustering reducer above this many images (negative disables)")
	groupCmd.Flags().String("strategy", "", "Grouping strategy: anchor or components")
	groupCmd.Flags().Bool("record-rejected", false, "Include rejected pairs in the report")
	groupCmd.Flags().Bool("json", false, "Print the report as JSON")
	groupCmd.Flags().String("output", "", "Write the JSON report to this file")
	groupCmd.Flags().Bool("no-progress", false, "Do not show progress bars")
}

func runGroup(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	folder := args[0]

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

	jsonOutput := mustGetBool(cmd, "json")
	runOpts := pipeline.RunOptions{
		Folder:    folder,
		Recursive: mustGetBool(cmd, "recursive"),
		Dedup:     opts,
	}
	var progress *progressReporter
	if !mustGetBool(cmd, "no-progress") {
		progress = newProgressReporter(os.Stderr)
		runOpts.OnProgress = progress.Update
	}

	report, err := p.Run(ctx, runOpts)
	progress.Finish()
	if err != nil {
		if pipeline.IsCanceled(err) {
			return fmt.Errorf("grouping canceled: %w", err)
		}
		return err
	}

	if output := mustGetString(cmd, "output"); output != "" {
		if err := writeReportFile(output, report); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("Report written to %s\n", output)
		}
	}

	if jsonOutput {
		return report.WriteJSON(os.Stdout)
	}
	printReport(os.Stdout, report)
	return nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func writeReportFile(path string, report *dedup.Report) error {
	f, err := os.Create(path) //nolint:gosec // path is given by the user
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

// progressReporter shows one progress bar per pipeline phase.
type progressReporter struct {
	w     io.Writer
	phase string
	bar   *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{w: w}
}

var phaseDescriptions = map[string]string{
	pipeline.PhaseScanning: "Scanning folder",
	pipeline.PhaseLoading:  "Computing features",
	pipeline.PhaseIndexing: "Selecting candidates",
	pipeline.PhaseGrouping: "Grouping",
	pipeline.PhaseMatching: "Matching",
}

// Update is a pipeline progress callback.
func (r *progressReporter) Update(info pipeline.ProgressInfo) {
	if info.Total <= 0 {
		return
	}
	if info.Phase != r.phase || r.bar == nil {
		r.Finish()
		r.phase = info.Phase
		r.bar = progressbar.NewOptions(info.Total,
			progressbar.OptionSetWriter(r.w),
			progressbar.OptionSetDescription(phaseDescriptions[info.Phase]),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}
	_ = r.bar.Set(info.Current)
}

// Finish completes the current bar, if any. Safe on a nil reporter.
func (r *progressReporter) Finish() {
	if r == nil || r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	fmt.Fprintln(r.w)
	r.bar = nil
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// printReport renders a report as coloured text.
func printReport(w io.Writer, report *dedup.Report) {
	header := color.New(color.FgCyan, color.Bold)
	groupColor := color.New(color.FgGreen, color.Bold)
	errColor := color.New(color.FgRed)

	header.Fprintf(w, "Run %s\n", report.RunID)
	fmt.Fprintf(w, "Folder:   %s\n", report.Folder)
	fmt.Fprintf(w, "Duration: %s\n", report.Duration)
	fmt.Fprintf(w, "Options:  %s\n\n", report.Options)

	if len(report.Groups) == 0 {
		fmt.Fprintln(w, "No duplicate groups found.")
	}
	for _, g := range report.Groups {
		groupColor.Fprintf(w, "Group %d", g.ID)
		fmt.Fprintf(w, " (%d images, anchor %s)\n", len(g.Members), filepath.Base(g.Anchor))
		for _, m := range g.Members {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}

	if len(report.Scores) > 0 {
		fmt.Fprintln(w)
		header.Fprintln(w, "Accepted pairs")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "IMAGE A\tIMAGE B\tHASH\tSEMANTIC\tVISUAL\tTEXT")
		for _, s := range report.Scores {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
				filepath.Base(s.A), filepath.Base(s.B), s.HashDistance,
				formatPercent(s.Semantic), formatPercent(s.Visual), formatPercent(s.Text))
		}
		tw.Flush()
	}

	if len(report.Errors) > 0 {
		fmt.Fprintln(w)
		errColor.Fprintf(w, "%d images could not be processed\n", len(report.Errors))
		for _, e := range report.Errors {
			fmt.Fprintf(w, "  %s [%s]: %s\n", e.Path, e.Kind, e.Message)
		}
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintln(w)
		color.New(color.FgYellow).Fprintf(w, "%d text extractions failed\n", len(report.Warnings))
		for _, e := range report.Warnings {
			fmt.Fprintf(w, "  %s: %s\n", e.Path, e.Message)
		}
	}

	printStats(w, report.Stats)
}

func printStats(w io.Writer, s dedup.Stats) {
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Images:\t%d\n", s.Images)
	fmt.Fprintf(tw, "Comparisons:\t%d\n", s.Comparisons)
	fmt.Fprintf(tw, "Rejected (hash/semantic/visual/text):\t%d/%d/%d/%d\n",
		s.HashRejected, s.SemanticRejected, s.VisualRejected, s.TextRejected)
	fmt.Fprintf(tw, "Accepted:\t%d\n", s.Accepted)
	fmt.Fprintf(tw, "Groups:\t%d (%d images)\n", s.Groups, s.Grouped)
	fmt.Fprintf(tw, "Ungrouped:\t%d\n", s.Ungrouped)
	fmt.Fprintf(tw, "Errored:\t%d\n", s.Errored)
	if s.Reduced {
		fmt.Fprintf(tw, "Clustering:\tenabled\n")
	}
	tw.Flush()
}
