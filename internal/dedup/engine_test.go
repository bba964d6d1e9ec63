package dedup

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var strategies = []Strategy{StrategyAnchor, StrategyComponents}

func newEngine(t *testing.T, opts Options, text TextSource, options ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(opts, text, options...)
	require.NoError(t, err)
	return e
}

// xyz builds the three-image scenario: X matches both Y and Z, but Y and Z
// do not match each other.
func xyz() ([]*ImageRecord, *fakeText) {
	text := newFakeText()
	text.texts["x.jpg"] = "abcdefghijkl"
	text.texts["y.jpg"] = "abcdefgh"     // ratio with x = 16/20 = 0.8
	text.texts["z.jpg"] = "abcdefghiXYZ" // ratio with x = 18/24 = 0.75

	records := []*ImageRecord{
		record("x.jpg", 0, unit(0), unit(0)),
		record("y.jpg", 0x1F, unit(angleFor(0.95)), unit(angleFor(0.95))),
		record("z.jpg", 0x1F<<20, unit(-angleFor(0.92)), unit(-angleFor(0.91))),
	}
	return records, text
}

func xyzOptions() Options {
	opts := DefaultOptions()
	opts.PHashThreshold = 30
	opts.SemanticThreshold = 0.9
	opts.VisualThreshold = 0.9
	opts.TextThreshold = 0.7
	return opts
}

func TestGroup_XYZScenario(t *testing.T) {
	records, text := xyz()
	opts := xyzOptions()
	opts.RecordRejected = true
	e := newEngine(t, opts, text)

	res, err := e.Group(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, SimilarityGroup{ID: 1, Anchor: "x.jpg", Members: []string{"x.jpg", "y.jpg", "z.jpg"}}, res.Groups[0])
	assert.Empty(t, res.Ungrouped)
	assert.Empty(t, res.Errors)

	require.Len(t, res.Scores, 2)
	assert.Equal(t, "y.jpg", res.Scores[0].B)
	assert.Equal(t, 5, res.Scores[0].HashDistance)
	assert.InDelta(t, 0.95, res.Scores[0].Semantic, 1e-6)
	assert.InDelta(t, 0.8, res.Scores[0].Text, 1e-9)
	assert.Equal(t, "z.jpg", res.Scores[1].B)
	assert.InDelta(t, 0.92, res.Scores[1].Semantic, 1e-6)
	assert.InDelta(t, 0.91, res.Scores[1].Visual, 1e-6)
	assert.InDelta(t, 0.75, res.Scores[1].Text, 1e-9)

	// Y and Z are never compared with each other
	for _, d := range res.Decisions {
		assert.Equal(t, "x.jpg", d.A)
	}
	assert.Equal(t, 2, res.Stats.Comparisons)
}

func TestGroup_XYZScenarioDirectPairFails(t *testing.T) {
	records, text := xyz()
	eval := NewEvaluator(xyzOptions(), text)

	d, err := eval.Evaluate(context.Background(), records[1], records[2])
	require.NoError(t, err)

	assert.False(t, d.Accepted, "Y and Z only group through X")
}

func TestGroup_XYZComponents(t *testing.T) {
	records, text := xyz()
	opts := xyzOptions()
	opts.Strategy = StrategyComponents
	e := newEngine(t, opts, text)

	res, err := e.Group(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"x.jpg", "y.jpg", "z.jpg"}}, groupPaths(res))
	assert.Equal(t, 3, res.Stats.Comparisons)
	assert.Equal(t, 2, res.Stats.Accepted)
}

func TestGroup_NoPairPasses(t *testing.T) {
	var records []*ImageRecord
	for i := range 6 {
		// 60 degrees apart: no semantic similarity above 0.5
		records = append(records, record(fmt.Sprintf("%d.jpg", i), 0, unit(float64(i*60)), unit(0)))
	}

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Strategy = strategy
			res, err := newEngine(t, opts, nil).Group(context.Background(), records)
			require.NoError(t, err)

			assert.Empty(t, res.Groups)
			assert.NotNil(t, res.Groups)
			assert.Equal(t, []string{"0.jpg", "1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"}, res.Ungrouped)
			assert.Empty(t, res.Scores)
			assert.Equal(t, 6, res.Stats.Ungrouped)
		})
	}
}

func TestGroup_CorruptImageAmongTen(t *testing.T) {
	records := twins("img", 10, 0xABCDEF)
	text := newFakeText()
	text.fail["img03.jpg"] = &DecodeError{Path: "img03.jpg", Err: errBroken}

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Strategy = strategy
			res, err := newEngine(t, opts, text).Group(context.Background(), records)
			require.NoError(t, err)

			require.Len(t, res.Errors, 1)
			assert.Equal(t, ImageError{Path: "img03.jpg", Kind: KindDecode, Message: "broken file"}, res.Errors[0])
			require.Len(t, res.Groups, 1)
			assert.Len(t, res.Groups[0].Members, 9)
			assert.NotContains(t, res.Groups[0].Members, "img03.jpg")
			assert.NotContains(t, res.Ungrouped, "img03.jpg")
			assert.Equal(t, 1, res.Stats.Errored)
			assert.Equal(t, 9, res.Stats.Grouped)
		})
	}
}

func TestGroup_AnchorDecodeErrorLeavesPartnersUnvisited(t *testing.T) {
	records := twins("p", 4, 0)
	text := newFakeText()
	text.fail["p00.jpg"] = &DecodeError{Path: "p00.jpg", Err: errBroken}

	res, err := newEngine(t, DefaultOptions(), text).Group(context.Background(), records)
	require.NoError(t, err)

	// p00 failed as anchor, so p01 becomes the next anchor and takes the rest
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "p01.jpg", res.Groups[0].Anchor)
	assert.Equal(t, []string{"p01.jpg", "p02.jpg", "p03.jpg"}, res.Groups[0].Members)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "p00.jpg", res.Errors[0].Path)
	for _, s := range res.Scores {
		assert.NotEqual(t, "p00.jpg", s.A)
		assert.NotEqual(t, "p00.jpg", s.B)
	}
}

func TestGroup_GroupsAreDisjoint(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var records []*ImageRecord
	for i := range 40 {
		deg := rng.Float64() * 90
		records = append(records, record(fmt.Sprintf("r%02d.jpg", i), uint64(rng.IntN(4)), unit(deg), unit(deg/2)))
	}

	for _, strategy := range strategies {
		for _, threshold := range []float64{0.9, 0.99, 0.999} {
			t.Run(fmt.Sprintf("%s/%v", strategy, threshold), func(t *testing.T) {
				opts := DefaultOptions()
				opts.Strategy = strategy
				opts.SemanticThreshold = threshold
				res, err := newEngine(t, opts, nil).Group(context.Background(), records)
				require.NoError(t, err)

				seen := map[string]int{}
				for _, g := range res.Groups {
					assert.GreaterOrEqual(t, len(g.Members), 2)
					assert.IsIncreasing(t, g.Members)
					for _, m := range g.Members {
						prev, dup := seen[m]
						assert.False(t, dup, "%s in groups %d and %d", m, prev, g.ID)
						seen[m] = g.ID
					}
				}
				for _, u := range res.Ungrouped {
					assert.NotContains(t, seen, u)
				}
				assert.Equal(t, len(records), len(seen)+len(res.Ungrouped))
			})
		}
	}
}

func TestGroup_TighterThresholdNeverGrowsGroups(t *testing.T) {
	var records []*ImageRecord
	for i := range 30 {
		deg := float64(i) * 1.37
		records = append(records, record(fmt.Sprintf("m%02d.jpg", i), 0, unit(deg), unit(deg)))
	}
	// literal duplicates of two records
	records = append(records,
		record("m00_copy.jpg", records[0].PHash, records[0].Semantic, records[0].Visual),
		record("m05_copy.jpg", records[5].PHash, records[5].Semantic, records[5].Visual))

	opts := DefaultOptions()
	opts.Strategy = StrategyComponents
	var previous map[string]bool
	for _, threshold := range []float64{0.5, 0.9, 0.99, 0.9999, 1.0} {
		opts.SemanticThreshold = threshold
		res, err := newEngine(t, opts, nil).Group(context.Background(), records)
		require.NoError(t, err)

		current := groupedSet(res)
		if previous != nil {
			for path := range current {
				assert.True(t, previous[path], "threshold %v grouped %s which a looser threshold did not", threshold, path)
			}
		}
		previous = current

		if threshold == 1.0 {
			assert.ElementsMatch(t, [][]string{
				{"m00.jpg", "m00_copy.jpg"},
				{"m05.jpg", "m05_copy.jpg"},
			}, groupPaths(res))
		}
	}
}

func TestGroup_SemanticThresholdOneKeepsLiteralDuplicates(t *testing.T) {
	records := []*ImageRecord{
		record("a.jpg", 0, unit(0), unit(0)),
		record("a_copy.jpg", 0, unit(0), unit(0)),
		record("b.jpg", 1, unit(0.5), unit(0)),
	}
	opts := DefaultOptions()
	opts.SemanticThreshold = 1

	res, err := newEngine(t, opts, nil).Group(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a.jpg", "a_copy.jpg"}}, groupPaths(res))
	assert.Equal(t, []string{"b.jpg"}, res.Ungrouped)
}

func TestGroup_MinGroupSize(t *testing.T) {
	records := append(twins("a", 3, 0), twins("b", 2, 0xFFFFFFFFFFFFFFFF)...)

	opts := DefaultOptions()
	opts.MinGroupSize = 3
	res, err := newEngine(t, opts, nil).Group(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a00.jpg", "a01.jpg", "a02.jpg"}}, groupPaths(res))
	assert.Equal(t, []string{"b00.jpg", "b01.jpg"}, res.Ungrouped)
	// accepted pairs are reported even when their group is too small
	assert.Len(t, res.Scores, 3)

	opts.MinGroupSize = 1
	res, err = newEngine(t, opts, nil).Group(context.Background(), records[:1])
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a00.jpg"}}, groupPaths(res))
}

func TestGroup_ReducerRoundTrip(t *testing.T) {
	records := clusteredRecords(12, 20, 64)

	reducedOpts := DefaultOptions()
	reducedOpts.ClusterTrigger = 200
	reduced, err := newEngine(t, reducedOpts, nil).Group(context.Background(), records)
	require.NoError(t, err)
	require.True(t, reduced.Stats.Reduced, "240 images must trigger the reducer")

	plainOpts := DefaultOptions()
	plainOpts.ClusterTrigger = 0
	plain, err := newEngine(t, plainOpts, nil).Group(context.Background(), records)
	require.NoError(t, err)
	require.False(t, plain.Stats.Reduced)

	// feed the reduced order back with the reducer disabled
	byPath := map[string]*ImageRecord{}
	for _, r := range records {
		byPath[r.Path] = r
	}
	reordered := make([]*ImageRecord, len(reduced.Order))
	for i, p := range reduced.Order {
		reordered[i] = byPath[p]
	}
	roundTrip, err := newEngine(t, plainOpts, nil).Group(context.Background(), reordered)
	require.NoError(t, err)

	assert.ElementsMatch(t, groupPaths(plain), groupPaths(reduced))
	assert.ElementsMatch(t, groupPaths(plain), groupPaths(roundTrip))
	assert.Len(t, plain.Groups, 12)
}

// clusteredRecords builds `clusters` groups of near-identical images whose
// semantic vectors point along different axes.
func clusteredRecords(clusters, perCluster, dim int) []*ImageRecord {
	rng := rand.New(rand.NewPCG(5, 6))
	var out []*ImageRecord
	for i := range perCluster {
		for c := range clusters {
			v := make([]float32, dim)
			for d := range v {
				v[d] = float32(rng.NormFloat64() * 0.2)
			}
			v[c] += 10
			out = append(out, &ImageRecord{
				Path:     fmt.Sprintf("c%02d_%02d.jpg", c, i),
				PHash:    uint64(c) << 40,
				Semantic: v,
				Visual:   v,
			})
		}
	}
	return out
}

func TestGroup_ConcurrencyDoesNotChangeResult(t *testing.T) {
	records := clusteredRecords(5, 6, 16)
	var results [][][]string
	for _, workers := range []int{1, 4, 64, 1000} {
		opts := DefaultOptions()
		opts.Concurrency = workers
		res, err := newEngine(t, opts, nil).Group(context.Background(), records)
		require.NoError(t, err)
		results = append(results, groupPaths(res))
	}
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestGroup_Progress(t *testing.T) {
	records := twins("p", 5, 0)
	var calls [][2]int
	e := newEngine(t, DefaultOptions(), nil, WithProgress(func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}))

	_, err := e.Group(context.Background(), records)
	require.NoError(t, err)

	require.NotEmpty(t, calls)
	assert.Equal(t, [2]int{5, 5}, calls[len(calls)-1])
}

func TestGroup_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, DefaultOptions(), nil).Group(ctx, twins("c", 3, 0))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestGroup_DuplicatePathRejected(t *testing.T) {
	records := []*ImageRecord{record("a.jpg", 0, unit(0), unit(0)), record("a.jpg", 0, unit(0), unit(0))}

	_, err := newEngine(t, DefaultOptions(), nil).Group(context.Background(), records)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "images", cfgErr.Field)
}

func TestNewEngine_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.TextThreshold = 1.5
	text := newFakeText()

	e, err := NewEngine(opts, text)

	assert.Nil(t, e)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "text_threshold", cfgErr.Field)
}
