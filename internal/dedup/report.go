package dedup

import (
	"cmp"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"time"
)

// Report is the serializable outcome of a grouping run over one folder.
type Report struct {
	RunID     string            `json:"run_id"`
	Folder    string            `json:"folder"`
	Options   Options           `json:"options"`
	StartedAt time.Time         `json:"started_at"`
	Duration  string            `json:"duration"`
	Groups    []SimilarityGroup `json:"groups"`
	Scores    []PairDecision    `json:"scores"`
	Decisions []PairDecision    `json:"decisions,omitempty"`
	Ungrouped []string          `json:"ungrouped"`
	Errors    []ImageError      `json:"errors"`
	Warnings  []ImageError      `json:"warnings,omitempty"`
	Stats     Stats             `json:"stats"`
}

// NewReport assembles a report from a grouping result and the images that
// failed before grouping (while reading files or computing features).
func NewReport(runID, folder string, opts Options, res *Result, loadErrors []ImageError, startedAt time.Time) *Report {
	r := &Report{
		RunID:     runID,
		Folder:    folder,
		Options:   opts,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt).Round(time.Millisecond).String(),
		Groups:    res.Groups,
		Scores:    res.Scores,
		Decisions: res.Decisions,
		Ungrouped: res.Ungrouped,
		Stats:     res.Stats,
	}
	r.Errors = append(r.Errors, res.Errors...)
	r.Errors = append(r.Errors, loadErrors...)
	slices.SortFunc(r.Errors, func(a, b ImageError) int {
		return cmp.Compare(a.Path, b.Path)
	})
	if r.Errors == nil {
		r.Errors = []ImageError{}
	}
	r.Stats.Images += len(loadErrors)
	r.Stats.Errored = len(r.Errors)
	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// NewImageError converts a per-image failure into a report entry.
func NewImageError(path string, err error) ImageError {
	var decodeErr *DecodeError
	var extractErr *ExtractionFailure
	switch {
	case errors.As(err, &decodeErr):
		return ImageError{Path: path, Kind: KindDecode, Message: errorMessage(decodeErr.Err)}
	case errors.As(err, &extractErr):
		return ImageError{Path: path, Kind: KindExtraction, Message: errorMessage(extractErr.Err)}
	default:
		return ImageError{Path: path, Kind: KindFeatures, Message: errorMessage(err)}
	}
}
