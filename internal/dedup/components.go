package dedup

import "context"

// unionFind groups image paths connected by accepted pairs
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind(paths []string) *unionFind {
	uf := &unionFind{
		parent: make(map[string]string, len(paths)),
		rank:   make(map[string]int, len(paths)),
	}
	for _, p := range paths {
		uf.parent[p] = p
	}
	return uf
}

func (uf *unionFind) find(x string) string {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x])
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y string) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}

// groupComponents evaluates every pair, one row of the iteration order at a
// time, and groups the connected components of the accepted pairs. Unlike
// the anchor strategy the result does not depend on the iteration order.
func (e *Engine) groupComponents(ctx context.Context, r *run) error {
	width := e.opts.Workers()
	var accepted []PairDecision
	for pos, a := range r.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.excluded[a] {
			continue
		}
		var tasks []comparison
		for _, b := range r.order[pos+1:] {
			if !r.excluded[b] {
				tasks = append(tasks, comparison{a: a, b: b})
			}
		}
		if err := fanOut(ctx, width, e.eval, r.records, tasks); err != nil {
			return err
		}
		row, err := e.collect(r, tasks)
		if err != nil {
			return err
		}
		accepted = append(accepted, row...)
		r.visited[a] = true
		e.report(r)
	}

	var paths []string
	for _, i := range r.order {
		if !r.excluded[i] {
			paths = append(paths, r.records[i].Path)
		}
	}
	uf := newUnionFind(paths)
	for _, d := range accepted {
		// an image can fail after some of its pairs were already accepted
		if r.excluded[r.index[d.A]] || r.excluded[r.index[d.B]] {
			continue
		}
		uf.union(d.A, d.B)
		r.result.Scores = append(r.result.Scores, d)
	}

	// components keyed by root, in order of their first member
	var roots []string
	members := map[string][]int{}
	for _, p := range paths {
		root := uf.find(p)
		if _, seen := members[root]; !seen {
			roots = append(roots, root)
		}
		members[root] = append(members[root], r.index[p])
	}
	for _, root := range roots {
		m := members[root]
		if len(m) >= e.opts.MinGroupSize {
			r.commit(m[0], m)
		}
	}
	return nil
}
