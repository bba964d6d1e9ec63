package dedup

import (
	"cmp"
	"context"
	"errors"
	"slices"
)

// MatchResult is the outcome of comparing one image against many.
type MatchResult struct {
	Query     string         `json:"query"`
	Matches   []PairDecision `json:"matches"`             // accepted, best first
	Decisions []PairDecision `json:"decisions,omitempty"` // every evaluated pair, if requested
	Errors    []ImageError   `json:"errors"`
	Stats     Stats          `json:"stats"`
}

// MatchScore ranks an accepted pair: the mean of its embedding scores.
func MatchScore(d PairDecision) float64 {
	return (d.Semantic + d.Visual) / 2
}

// Match evaluates query against every candidate on the engine's worker pool.
// Candidates with the query's path are skipped. An unreadable candidate is
// reported and skipped; an unreadable query fails the match.
func (e *Engine) Match(ctx context.Context, query *ImageRecord, candidates []*ImageRecord) (*MatchResult, error) {
	if query == nil {
		return nil, &ConfigurationError{Field: "query", Reason: "missing query image"}
	}

	records := []*ImageRecord{query}
	var tasks []comparison
	for _, c := range candidates {
		if c == nil || c.Path == query.Path {
			continue
		}
		records = append(records, c)
		tasks = append(tasks, comparison{a: 0, b: len(records) - 1})
	}

	if err := fanOut(ctx, e.opts.Workers(), e.eval, records, tasks); err != nil {
		return nil, err
	}

	res := &MatchResult{
		Query:   query.Path,
		Matches: []PairDecision{},
		Errors:  []ImageError{},
	}
	res.Stats.Images = len(records)
	for _, t := range tasks {
		if t.err != nil {
			var decodeErr *DecodeError
			if !errors.As(t.err, &decodeErr) || decodeErr.Path == query.Path {
				return nil, t.err
			}
			res.Errors = append(res.Errors, ImageError{
				Path:    decodeErr.Path,
				Kind:    KindDecode,
				Message: errorMessage(decodeErr.Err),
			})
			e.logger.Warn("skipping unreadable candidate", "path", decodeErr.Path, "error", decodeErr.Err)
			continue
		}
		res.Stats.count(t.decision)
		if e.opts.RecordRejected {
			res.Decisions = append(res.Decisions, t.decision)
		}
		if t.decision.Accepted {
			res.Matches = append(res.Matches, t.decision)
		}
	}

	slices.SortFunc(res.Matches, func(a, b PairDecision) int {
		if c := cmp.Compare(MatchScore(b), MatchScore(a)); c != 0 {
			return c
		}
		return cmp.Compare(a.B, b.B)
	})
	res.Stats.Errored = len(res.Errors)
	res.Stats.Grouped = len(res.Matches)
	e.logger.Info("match finished",
		"query", query.Path,
		"candidates", len(tasks),
		"matches", len(res.Matches),
		"errored", len(res.Errors))
	return res, nil
}
