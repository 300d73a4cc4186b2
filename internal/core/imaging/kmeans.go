package imaging

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

const (
	kmeansClusters  = 2
	kmeansSeed      = 42
	kmeansMaxIter   = 300
	kmeansTolerance = 1e-4
)

// KMeans1D partitions scalar values into k clusters with k-means++ seeding
// from a fixed seed followed by Lloyd iterations. Labels are ordered by
// centroid, so label 0 is the lowest-valued cluster.
func KMeans1D(values []float64, k int) (labels []int, centroids []float64, err error) {
	if k <= 0 {
		return nil, nil, domain.NewError(domain.ErrInvalidInput, "cluster count must be positive, got %d", k)
	}
	if len(values) < k {
		return nil, nil, domain.WrapError(domain.ErrAnalysisFailure, "kmeans",
			errors.New("fewer samples than clusters"))
	}
	if floats.HasNaN(values) || hasInf(values) {
		return nil, nil, domain.WrapError(domain.ErrAnalysisFailure, "kmeans", errors.New("input contains non-finite values"))
	}

	rng := rand.New(rand.NewPCG(kmeansSeed, kmeansSeed))
	centroids = seedCentroids(values, k, rng)

	// sklearn-style tolerance, relative to the data variance
	tol := kmeansTolerance * stat.PopVariance(values, nil)

	labels = make([]int, len(values))
	sums := make([]float64, k)
	counts := make([]int, k)
	for iter := 0; iter < kmeansMaxIter; iter++ {
		assign(values, centroids, labels)

		for j := range sums {
			sums[j], counts[j] = 0, 0
		}
		for i, v := range values {
			sums[labels[i]] += v
			counts[labels[i]]++
		}
		var shift float64
		for j := range centroids {
			if counts[j] == 0 {
				continue
			}
			next := sums[j] / float64(counts[j])
			shift += (next - centroids[j]) * (next - centroids[j])
			centroids[j] = next
		}
		if shift <= tol {
			break
		}
	}
	assign(values, centroids, labels)

	labels, centroids = orderByCentroid(labels, centroids)
	return labels, centroids, nil
}

func seedCentroids(values []float64, k int, rng *rand.Rand) []float64 {
	centroids := make([]float64, 0, k)
	centroids = append(centroids, values[rng.IntN(len(values))])

	dist := make([]float64, len(values))
	for len(centroids) < k {
		for i, v := range values {
			dist[i] = math.Inf(1)
			for _, c := range centroids {
				dist[i] = math.Min(dist[i], (v-c)*(v-c))
			}
		}
		total := floats.Sum(dist)
		if total == 0 {
			// every value coincides with a centroid
			centroids = append(centroids, centroids[0])
			continue
		}
		target := rng.Float64() * total
		pick := len(values) - 1
		var acc float64
		for i, d := range dist {
			acc += d
			if acc >= target && d > 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, values[pick])
	}
	return centroids
}

func assign(values, centroids []float64, labels []int) {
	for i, v := range values {
		best, bestDist := 0, math.Inf(1)
		for j, c := range centroids {
			if d := math.Abs(v - c); d < bestDist {
				best, bestDist = j, d
			}
		}
		labels[i] = best
	}
}

func orderByCentroid(labels []int, centroids []float64) ([]int, []float64) {
	order := make([]int, len(centroids))
	sorted := append([]float64(nil), centroids...)
	floats.ArgsortStable(sorted, order)

	rank := make([]int, len(centroids))
	for r, j := range order {
		rank[j] = r
	}
	for i, l := range labels {
		labels[i] = rank[l]
	}
	return labels, sorted
}

func kmeansLabels(p Plane) ([]int, []float64, error) {
	return KMeans1D(p.Data, kmeansClusters)
}
