package reducer

import (
	"math"
	"math/rand/v2"
)

// kmeans clusters points into k groups with k-means++ seeding followed by
// Lloyd iterations. The same seed always yields the same labels.
func kmeans(points [][]float64, k int, opts Options) []int {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	centroids := seedCentroids(points, k, rng)
	labels := make([]int, len(points))

	for range opts.MaxIterations {
		for i, p := range points {
			labels[i] = nearest(p, centroids)
		}

		next := recompute(points, labels, centroids)
		shift := 0.0
		for c := range centroids {
			shift += squaredDistance(centroids[c], next[c])
		}
		centroids = next
		if shift <= opts.Tolerance {
			break
		}
	}

	for i, p := range points {
		labels[i] = nearest(p, centroids)
	}
	return labels
}

// seedCentroids picks k initial centroids: the first uniformly, each next one
// with probability proportional to its squared distance from the nearest
// centroid chosen so far.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := squaredDistance(p, centroids[nearest(p, centroids)])
			dist[i] = d
			total += d
		}
		if total == 0 {
			// every point coincides with a centroid
			centroids = append(centroids, clone(points[rng.IntN(len(points))]))
			continue
		}

		target := rng.Float64() * total
		chosen := len(points) - 1
		for i, d := range dist {
			target -= d
			if target < 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, clone(points[chosen]))
	}
	return centroids
}

// recompute returns the mean of every cluster. An empty cluster keeps its
// previous centroid.
func recompute(points [][]float64, labels []int, previous [][]float64) [][]float64 {
	dim := len(points[0])
	sums := make([][]float64, len(previous))
	counts := make([]int, len(previous))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		c := labels[i]
		counts[c]++
		for d, v := range p {
			sums[c][d] += v
		}
	}
	for c := range sums {
		if counts[c] == 0 {
			copy(sums[c], previous[c])
			continue
		}
		for d := range sums[c] {
			sums[c][d] /= float64(counts[c])
		}
	}
	return sums
}

func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
