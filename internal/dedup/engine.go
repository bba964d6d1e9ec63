package dedup

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kozaktomas/photo-dedup/internal/reducer"
)

// Engine groups image records. One engine serves one configuration and can
// run any number of times; it holds no state between runs.
type Engine struct {
	opts     Options
	eval     *Evaluator
	logger   *slog.Logger
	progress ProgressFunc
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProgress registers a progress callback. It is called from the
// orchestrating goroutine only.
func WithProgress(fn ProgressFunc) EngineOption {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine validates opts and returns an engine. The error is a
// *ConfigurationError when opts are out of bounds.
func NewEngine(opts Options, text TextSource, options ...EngineOption) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		opts:   opts,
		eval:   NewEvaluator(opts, text),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range options {
		o(e)
	}
	return e, nil
}

// Options returns the configuration the engine runs with.
func (e *Engine) Options() Options {
	return e.opts
}

// Evaluator returns the pair evaluator used by the engine.
func (e *Engine) Evaluator() *Evaluator {
	return e.eval
}

// run holds the mutable state of one Group call. Only the orchestrating
// goroutine touches it.
type run struct {
	records  []*ImageRecord
	order    []int
	index    map[string]int
	visited  []bool
	excluded []bool
	result   *Result
}

// Group partitions records into similarity groups.
func (e *Engine) Group(ctx context.Context, records []*ImageRecord) (*Result, error) {
	r, err := e.newRun(records)
	if err != nil {
		return nil, err
	}

	e.logger.Info("grouping images",
		"images", len(records),
		"strategy", e.opts.strategy(),
		"workers", e.opts.Workers(),
		"reduced", r.result.Stats.Reduced)

	switch e.opts.strategy() {
	case StrategyComponents:
		err = e.groupComponents(ctx, r)
	default:
		err = e.groupAnchors(ctx, r)
	}
	if err != nil {
		return nil, err
	}

	r.finish()
	e.logger.Info("grouping finished",
		"groups", r.result.Stats.Groups,
		"grouped", r.result.Stats.Grouped,
		"ungrouped", r.result.Stats.Ungrouped,
		"errored", r.result.Stats.Errored,
		"comparisons", r.result.Stats.Comparisons)
	return r.result, nil
}

func (e *Engine) newRun(records []*ImageRecord) (*run, error) {
	index := make(map[string]int, len(records))
	keys := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		if rec == nil {
			return nil, &ConfigurationError{Field: "images", Reason: fmt.Sprintf("record %d is nil", i)}
		}
		if _, dup := index[rec.Path]; dup {
			return nil, &ConfigurationError{Field: "images", Reason: fmt.Sprintf("duplicate image path %q", rec.Path)}
		}
		index[rec.Path] = i
		keys[i] = rec.Path
		vectors[i] = rec.Semantic
	}

	ropts := reducer.DefaultOptions()
	ropts.Trigger = e.opts.ClusterTrigger
	order := reducer.Order(keys, vectors, ropts)

	r := &run{
		records:  records,
		order:    order,
		index:    index,
		visited:  make([]bool, len(records)),
		excluded: make([]bool, len(records)),
		result: &Result{
			Groups:    []SimilarityGroup{},
			Scores:    []PairDecision{},
			Ungrouped: []string{},
			Errors:    []ImageError{},
			Order:     make([]string, len(order)),
		},
	}
	for pos, i := range order {
		r.result.Order[pos] = keys[i]
	}
	r.result.Stats.Images = len(records)
	r.result.Stats.Reduced = !isIdentity(order)
	return r, nil
}

// groupAnchors walks the iteration order and, for each unvisited image,
// matches it against every later unvisited image.
func (e *Engine) groupAnchors(ctx context.Context, r *run) error {
	width := e.opts.Workers()
	for pos, anchor := range r.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.visited[anchor] || r.excluded[anchor] {
			continue
		}
		r.visited[anchor] = true

		var tasks []comparison
		for _, candidate := range r.order[pos+1:] {
			if r.visited[candidate] || r.excluded[candidate] {
				continue
			}
			tasks = append(tasks, comparison{a: anchor, b: candidate})
		}
		if err := fanOut(ctx, width, e.eval, r.records, tasks); err != nil {
			return err
		}

		accepted, err := e.collect(r, tasks)
		if err != nil {
			return err
		}
		if r.excluded[anchor] {
			// partners stay unvisited and get another chance with a later anchor
			e.logger.Warn("anchor failed, discarding its group", "anchor", r.records[anchor].Path)
			e.report(r)
			continue
		}

		members := []int{anchor}
		for _, d := range accepted {
			partner := r.index[d.B]
			if r.excluded[partner] {
				continue
			}
			r.visited[partner] = true
			members = append(members, partner)
			r.result.Scores = append(r.result.Scores, d)
		}
		if len(members) >= e.opts.MinGroupSize {
			r.commit(anchor, members)
		}
		e.report(r)
	}
	return nil
}

// collect folds the outcome of a fan-out into the run: decode errors exclude
// the offending image and every decision is counted. It returns the accepted
// decisions in task order.
func (e *Engine) collect(r *run, tasks []comparison) ([]PairDecision, error) {
	var accepted []PairDecision
	for _, t := range tasks {
		if t.err != nil {
			var decodeErr *DecodeError
			if !errors.As(t.err, &decodeErr) {
				return nil, t.err
			}
			r.exclude(decodeErr, e.logger)
			continue
		}
		r.result.Stats.count(t.decision)
		if e.opts.RecordRejected {
			r.result.Decisions = append(r.result.Decisions, t.decision)
		}
		if t.decision.Accepted {
			accepted = append(accepted, t.decision)
		}
	}
	return accepted, nil
}

// exclude removes an image from the rest of the run. An image is reported once.
func (r *run) exclude(err *DecodeError, logger *slog.Logger) {
	i, ok := r.index[err.Path]
	if !ok || r.excluded[i] {
		return
	}
	r.excluded[i] = true
	r.result.Errors = append(r.result.Errors, ImageError{
		Path:    err.Path,
		Kind:    KindDecode,
		Message: errorMessage(err.Err),
	})
	logger.Warn("excluding unreadable image", "path", err.Path, "error", err.Err)
}

func (r *run) commit(anchor int, members []int) {
	paths := make([]string, len(members))
	for i, m := range members {
		paths[i] = r.records[m].Path
	}
	slices.Sort(paths)
	r.result.Groups = append(r.result.Groups, SimilarityGroup{
		ID:      len(r.result.Groups) + 1,
		Anchor:  r.records[anchor].Path,
		Members: paths,
	})
}

// finish fills the ungrouped list and the summary counters.
func (r *run) finish() {
	grouped := map[string]bool{}
	for _, g := range r.result.Groups {
		for _, m := range g.Members {
			grouped[m] = true
		}
	}
	for i, rec := range r.records {
		if r.excluded[i] || grouped[rec.Path] {
			continue
		}
		r.result.Ungrouped = append(r.result.Ungrouped, rec.Path)
	}
	slices.Sort(r.result.Ungrouped)
	slices.SortFunc(r.result.Errors, func(a, b ImageError) int {
		return cmp.Compare(a.Path, b.Path)
	})

	s := &r.result.Stats
	s.Groups = len(r.result.Groups)
	s.Grouped = len(grouped)
	s.Ungrouped = len(r.result.Ungrouped)
	s.Errored = len(r.result.Errors)
}

func (e *Engine) report(r *run) {
	if e.progress == nil {
		return
	}
	done := 0
	for i := range r.records {
		if r.visited[i] || r.excluded[i] {
			done++
		}
	}
	e.progress(done, len(r.records))
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func isIdentity(order []int) bool {
	for i, v := range order {
		if i != v {
			return false
		}
	}
	return true
}
