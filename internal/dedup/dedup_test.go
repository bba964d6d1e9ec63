package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// fakeText is an in-memory TextSource that counts extractions.
type fakeText struct {
	mu    sync.Mutex
	texts map[string]string
	fail  map[string]error
	calls map[string]int
}

func newFakeText() *fakeText {
	return &fakeText{
		texts: map[string]string{},
		fail:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeText) Text(_ context.Context, rec *ImageRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rec.Path]++
	if err, ok := f.fail[rec.Path]; ok {
		return "", err
	}
	return f.texts[rec.Path], nil
}

func (f *fakeText) called(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// unit returns a 2D unit vector at the given angle in degrees.
func unit(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

// angleFor returns the angle in degrees whose cosine is sim.
func angleFor(sim float64) float64 {
	return math.Acos(sim) * 180 / math.Pi
}

func record(path string, phash uint64, semantic, visual []float32) *ImageRecord {
	return &ImageRecord{Path: path, PHash: phash, Semantic: semantic, Visual: visual}
}

// twin returns n records with identical signals.
func twins(prefix string, n int, phash uint64) []*ImageRecord {
	out := make([]*ImageRecord, n)
	for i := range out {
		out[i] = record(fmt.Sprintf("%s%02d.jpg", prefix, i), phash, []float32{1, 2, 3}, []float32{3, 2, 1})
	}
	return out
}

func groupPaths(res *Result) [][]string {
	out := make([][]string, len(res.Groups))
	for i, g := range res.Groups {
		out[i] = g.Members
	}
	return out
}

func groupedSet(res *Result) map[string]bool {
	set := map[string]bool{}
	for _, g := range res.Groups {
		for _, m := range g.Members {
			set[m] = true
		}
	}
	return set
}

var errBroken = errors.New("broken file")
