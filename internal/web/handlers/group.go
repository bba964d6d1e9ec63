package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
)

// Runner executes grouping and matching jobs.
type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*dedup.Report, error)
	Match(ctx context.Context, opts pipeline.MatchOptions) (*dedup.MatchResult, error)
}

// GroupHandler handles grouping runs and one-off matches.
type GroupHandler struct {
	runner    Runner
	runs      *RunManager
	presets   config.Presets
	imageRoot string
	logger    *slog.Logger
}

// NewGroupHandler creates a new group handler. When imageRoot is set, only
// folders below it are accepted.
func NewGroupHandler(runner Runner, runs *RunManager, presets config.Presets, imageRoot string, logger *slog.Logger) *GroupHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GroupHandler{
		runner:    runner,
		runs:      runs,
		presets:   presets,
		imageRoot: imageRoot,
		logger:    logger,
	}
}

// ThresholdRequest carries a preset name and per-field overrides.
type ThresholdRequest struct {
	Preset            string         `json:"preset"`
	PHashThreshold    *int           `json:"phash_threshold,omitempty"`
	SemanticThreshold *float64       `json:"semantic_threshold,omitempty"`
	VisualThreshold   *float64       `json:"visual_threshold,omitempty"`
	TextThreshold     *float64       `json:"text_threshold,omitempty"`
	MinGroupSize      *int           `json:"min_group_size,omitempty"`
	ClusterTrigger    *int           `json:"cluster_trigger,omitempty"`
	Strategy          dedup.Strategy `json:"strategy,omitempty"`
	Concurrency       int            `json:"concurrency,omitempty"`
	Language          string         `json:"language,omitempty"`
	RecordRejected    bool           `json:"record_rejected,omitempty"`
}

// StartRequest represents a run start request
type StartRequest struct {
	ThresholdRequest
	Folder    string `json:"folder"`
	Recursive bool   `json:"recursive"`
}

// MatchRequest represents a one-to-many match request
type MatchRequest struct {
	ThresholdRequest
	Query      string `json:"query"`
	Folder     string `json:"folder"`
	Recursive  bool   `json:"recursive"`
	Candidates int    `json:"candidates"`
}

// options resolves the preset and applies the overrides.
func (h *GroupHandler) options(req ThresholdRequest) (dedup.Options, error) {
	preset, err := h.presets.Get(req.Preset)
	if err != nil {
		return dedup.Options{}, err
	}
	opts := preset.Options()
	if req.PHashThreshold != nil {
		opts.PHashThreshold = *req.PHashThreshold
	}
	if req.SemanticThreshold != nil {
		opts.SemanticThreshold = *req.SemanticThreshold
	}
	if req.VisualThreshold != nil {
		opts.VisualThreshold = *req.VisualThreshold
	}
	if req.TextThreshold != nil {
		opts.TextThreshold = *req.TextThreshold
	}
	if req.MinGroupSize != nil {
		opts.MinGroupSize = *req.MinGroupSize
	}
	if req.ClusterTrigger != nil {
		opts.ClusterTrigger = *req.ClusterTrigger
	}
	if req.Strategy != "" {
		opts.Strategy = req.Strategy
	}
	if req.Concurrency != 0 {
		opts.Concurrency = req.Concurrency
	}
	if req.Language != "" {
		opts.Language = req.Language
	}
	opts.RecordRejected = req.RecordRejected
	if err := opts.Validate(); err != nil {
		return dedup.Options{}, err
	}
	return opts, nil
}

// Start starts a new grouping run
func (h *GroupHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	folder, err := resolveFolder(h.imageRoot, req.Folder)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := h.options(req.ThresholdRequest)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := h.runs.CreateRun(folder, req.Recursive, opts)
	h.logger.Info("run created", "run_id", run.ID(), "folder", sanitizeForLog(folder))

	// Start run in background
	go h.execute(run)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID(),
		"folder": folder,
		"status": string(RunStatusPending),
	})
}

// execute runs the pipeline for a run in the background
func (h *GroupHandler) execute(run *Run) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	run.setCancel(cancel)
	if !run.start() {
		return
	}

	s := run.Snapshot()
	report, err := h.runner.Run(ctx, pipeline.RunOptions{
		Folder:     s.Folder,
		Recursive:  s.Recursive,
		Dedup:      s.Options,
		RunID:      s.ID,
		OnProgress: run.setProgress,
	})
	if err != nil {
		if pipeline.IsCanceled(err) {
			h.logger.Info("run cancelled", "run_id", s.ID)
			return
		}
		h.logger.Error("run failed", "run_id", s.ID, "error", err)
		run.fail(err.Error())
		return
	}

	h.logger.Info("run completed",
		"run_id", s.ID,
		"groups", report.Stats.Groups,
		"errored", report.Stats.Errored)
	run.complete(report)
}

// List returns all known runs without their reports
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.runs.ListRuns())
}

// Status returns the state of a run, including its report once completed
func (h *GroupHandler) Status(w http.ResponseWriter, r *http.Request) {
	run := h.lookup(w, r)
	if run == nil {
		return
	}
	respondJSON(w, http.StatusOK, run.Snapshot())
}

// Events streams run events via SSE
func (h *GroupHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.runs.GetRun)
}

// Delete cancels an active run and forgets it
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	if !h.runs.DeleteRun(runID) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Match compares one image against a folder and waits for the result
func (h *GroupHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	query, err := resolvePath(h.imageRoot, req.Query)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	folder, err := resolveFolder(h.imageRoot, req.Folder)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := h.options(req.ThresholdRequest)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.runner.Match(r.Context(), pipeline.MatchOptions{
		Query:      query,
		Folder:     folder,
		Recursive:  req.Recursive,
		Dedup:      opts,
		Candidates: req.Candidates,
	})
	if err != nil {
		var cfgErr *dedup.ConfigurationError
		var decodeErr *dedup.DecodeError
		switch {
		case errors.As(err, &cfgErr), errors.As(err, &decodeErr):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("match failed", "query", sanitizeForLog(query), "error", err)
			respondError(w, http.StatusInternalServerError, "match failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Presets lists the available threshold presets
func (h *GroupHandler) Presets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.presets)
}

func (h *GroupHandler) lookup(w http.ResponseWriter, r *http.Request) *Run {
	runID := chi.URLParam(r, "runId")
	if runID == "" {
		respondError(w, http.StatusBadRequest, "missing run ID")
		return nil
	}
	run := h.runs.GetRun(runID)
	if run == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return nil
	}
	return run
}
