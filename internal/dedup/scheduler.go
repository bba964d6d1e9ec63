package dedup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// comparison is one task of a fan-out: which records to compare and, after
// the join, what came out.
type comparison struct {
	a, b     int
	decision PairDecision
	err      error
}

// fanOut evaluates every comparison on a pool of at most width workers and
// returns once all of them finished. Each worker writes only its own slot.
// A failed comparison never stops its siblings; only cancellation of ctx
// does, in which case ctx's error is returned.
func fanOut(ctx context.Context, width int, eval *Evaluator, records []*ImageRecord, tasks []comparison) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(width)
	for i := range tasks {
		task := &tasks[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			task.decision, task.err = eval.Evaluate(ctx, records[task.a], records[task.b])
			return nil
		})
	}
	return g.Wait()
}
