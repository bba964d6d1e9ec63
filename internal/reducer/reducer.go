// Package reducer reorders a large image set so that images with similar
// semantic embeddings become adjacent. It projects the embeddings onto their
// principal components, clusters the projection with k-means and emits the
// images sorted by cluster label. No image is ever dropped.
package reducer

import (
	"math"
	"sort"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Options controls when and how the reducer runs.
type Options struct {
	Trigger          int // reduce only when len(keys) > Trigger; <= 0 disables
	Components       int
	ImagesPerCluster int
	MaxClusters      int
	Seed             uint64
	MaxIterations    int
	Tolerance        float64
}

// DefaultOptions returns the reducer configuration used by grouping runs.
func DefaultOptions() Options {
	return Options{
		Trigger:          constants.DefaultClusterTrigger,
		Components:       constants.ReducerComponents,
		ImagesPerCluster: constants.ReducerImagesPerCluster,
		MaxClusters:      constants.ReducerMaxClusters,
		Seed:             constants.ReducerSeed,
		MaxIterations:    constants.ReducerMaxIterations,
		Tolerance:        constants.ReducerTolerance,
	}
}

// withDefaults fills zero fields (other than Trigger) from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Components <= 0 {
		o.Components = d.Components
	}
	if o.ImagesPerCluster <= 0 {
		o.ImagesPerCluster = d.ImagesPerCluster
	}
	if o.MaxClusters <= 0 {
		o.MaxClusters = d.MaxClusters
	}
	if o.Seed == 0 {
		o.Seed = d.Seed
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	return o
}

// Order returns a permutation of [0, len(keys)) to iterate the images in.
// When the reducer is inactive or the projection is degenerate the identity
// permutation is returned.
func Order(keys []string, vectors [][]float32, opts Options) []int {
	order := identity(len(keys))
	if opts.Trigger <= 0 || len(keys) <= opts.Trigger || len(vectors) != len(keys) {
		return order
	}

	labels, ok := Cluster(vectors, opts)
	if !ok {
		return order
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if labels[a] != labels[b] {
			return labels[a] < labels[b]
		}
		return keys[a] < keys[b]
	})
	return order
}

// Cluster projects vectors onto their principal components and assigns each
// one a k-means cluster label. ok is false when the input cannot be clustered.
func Cluster(vectors [][]float32, opts Options) (labels []int, ok bool) {
	opts = opts.withDefaults()
	n := len(vectors)
	k := min(n/opts.ImagesPerCluster, opts.MaxClusters)
	if k < 2 {
		return nil, false
	}

	data, ok := toDense(vectors)
	if !ok {
		return nil, false
	}
	_, dim := data.Dims()
	components := min(opts.Components, dim)
	if distinctRows(vectors) < components {
		return nil, false
	}

	projected, ok := project(data, components)
	if !ok {
		return nil, false
	}
	return kmeans(projected, k, opts), true
}

// project returns the data expressed in its first `components` principal axes.
func project(data *mat.Dense, components int) ([][]float64, bool) {
	var pc stat.PC
	if !pc.PrincipalComponents(data, nil) {
		return nil, false
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, available := vecs.Dims()
	components = min(components, available)
	if components == 0 {
		return nil, false
	}

	rows, dim := data.Dims()
	var proj mat.Dense
	proj.Mul(data, vecs.Slice(0, dim, 0, components))

	out := make([][]float64, rows)
	for i := range rows {
		out[i] = mat.Row(nil, i, &proj)
	}
	return out, true
}

func toDense(vectors [][]float32) (*mat.Dense, bool) {
	dim := len(vectors[0])
	if dim == 0 {
		return nil, false
	}
	flat := make([]float64, 0, len(vectors)*dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, false
		}
		for _, x := range v {
			f := float64(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, false
			}
			flat = append(flat, f)
		}
	}
	return mat.NewDense(len(vectors), dim, flat), true
}

func distinctRows(vectors [][]float32) int {
	seen := make(map[string]struct{}, len(vectors))
	buf := make([]byte, 0, 4*len(vectors[0]))
	for _, v := range vectors {
		buf = buf[:0]
		for _, x := range v {
			b := math.Float32bits(x)
			buf = append(buf, byte(b), byte(b>>8), byte(b>>16), byte(b>>24))
		}
		seen[string(buf)] = struct{}{}
	}
	return len(seen)
}

func identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
