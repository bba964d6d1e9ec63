package dedup

import (
	"context"
	"errors"

	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
	"github.com/kozaktomas/photo-dedup/internal/textsim"
)

// perfectScore is the similarity at which two signals count as identical.
// Identical inputs pass any threshold <= 1 even though the comparison is strict.
const perfectScore = 1 - 1e-9

// Evaluator decides whether two images are near-duplicates.
type Evaluator struct {
	opts Options
	text TextSource
}

// NewEvaluator creates an evaluator. A nil text source behaves like NoText.
func NewEvaluator(opts Options, text TextSource) *Evaluator {
	if text == nil {
		text = NoText{}
	}
	return &Evaluator{opts: opts, text: text}
}

// Evaluate runs the hash, semantic, visual and text stages in order and stops
// at the first that rejects. The only errors returned are *DecodeError from
// the text source and context errors.
func (e *Evaluator) Evaluate(ctx context.Context, a, b *ImageRecord) (PairDecision, error) {
	d := PairDecision{A: a.Path, B: b.Path}

	d.HashDistance = fingerprint.HammingDistance(a.PHash, b.PHash)
	if !fingerprint.Similar(a.PHash, b.PHash, e.opts.PHashThreshold) {
		d.Stage = StageHash
		return d, nil
	}

	d.Semantic = fingerprint.CosineSimilarity(a.Semantic, b.Semantic)
	if !exceeds(d.Semantic, e.opts.SemanticThreshold) {
		d.Stage = StageSemantic
		return d, nil
	}

	d.Visual = fingerprint.CosineSimilarity(a.Visual, b.Visual)
	if !exceeds(d.Visual, e.opts.VisualThreshold) {
		d.Stage = StageVisual
		return d, nil
	}

	score, err := e.textScore(ctx, a, b)
	if err != nil {
		return d, err
	}
	d.Text = score
	if d.Text < e.opts.TextThreshold && d.Text < perfectScore {
		d.Stage = StageText
		return d, nil
	}

	d.Stage = StageAccepted
	d.Accepted = true
	return d, nil
}

// textScore extracts text for both images and compares it. The pair is
// compared in path order so the score does not depend on argument order.
func (e *Evaluator) textScore(ctx context.Context, a, b *ImageRecord) (float64, error) {
	if a.Path > b.Path {
		a, b = b, a
	}
	textA, err := e.text.Text(ctx, a)
	if err != nil {
		return 0, textError(err)
	}
	textB, err := e.text.Text(ctx, b)
	if err != nil {
		return 0, textError(err)
	}
	return textsim.Ratio(textA, textB), nil
}

// textError passes decode and context errors through and turns everything
// else into a zero text score.
func textError(err error) error {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// exceeds reports whether score is strictly above threshold, treating a
// perfect score as passing any threshold up to 1.
func exceeds(score, threshold float64) bool {
	if score >= perfectScore && threshold <= 1 {
		return true
	}
	return score > threshold
}
