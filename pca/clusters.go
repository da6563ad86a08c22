package pca

import (
	"math"
	"math/rand"
	"runtime"
	"sync"
)

// KMeans clusters projected points into k groups. Initial centroids are
// drawn with a Forgy pick from rng seeded by seed, so equal inputs give equal
// results. k is clamped to len(points). When parallel is true the assignment
// step is split across all CPUs.
func KMeans(points [][2]float32, k, maxIter int, seed int64, parallel bool) (centroids [][2]float32, assignments []int) {
	if len(points) == 0 || k <= 0 {
		return nil, nil
	}
	if k > len(points) {
		k = len(points)
	}
	rng := rand.New(rand.NewSource(seed))

	centroids = make([][2]float32, k)
	assignments = make([]int, len(points))
	perm := rng.Perm(len(points))
	for i := range centroids {
		centroids[i] = points[perm[i]]
	}

	for iter := 0; iter < maxIter; iter++ {
		var changes int
		if parallel {
			changes = assignParallel(points, centroids, assignments)
		} else {
			changes = assign(points, centroids, assignments, 0, len(points))
		}
		if changes == 0 && iter > 0 {
			break
		}

		sums := make([][2]float32, k)
		counts := make([]int, k)
		for i, c := range assignments {
			sums[c][0] += points[i][0]
			sums[c][1] += points[i][1]
			counts[c]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Empty cluster: reseed on a random point.
				centroids[c] = points[rng.Intn(len(points))]
				continue
			}
			centroids[c] = [2]float32{sums[c][0] / float32(counts[c]), sums[c][1] / float32(counts[c])}
		}
	}
	return centroids, assignments
}

// assign moves points[start:end] to their nearest centroid and returns how
// many changed cluster.
func assign(points, centroids [][2]float32, assignments []int, start, end int) int {
	changes := 0
	for i := start; i < end; i++ {
		best, bestDist := 0, float32(math.MaxFloat32)
		for c, centroid := range centroids {
			if d := distance(points[i], centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		if assignments[i] != best {
			assignments[i] = best
			changes++
		}
	}
	return changes
}

func assignParallel(points, centroids [][2]float32, assignments []int) int {
	workers := runtime.NumCPU()
	chunk := (len(points) + workers - 1) / workers

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for start := 0; start < len(points); start += chunk {
		end := start + chunk
		if end > len(points) {
			end = len(points)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			local := assign(points, centroids, assignments, start, end)
			mu.Lock()
			changes += local
			mu.Unlock()
		}(start, end)
	}
	wg.Wait()
	return changes
}

func distance(a, b [2]float32) float32 {
	dx, dy := float64(a[0]-b[0]), float64(a[1]-b[1])
	return float32(math.Hypot(dx, dy))
}

// Silhouette returns the mean silhouette coefficient of the grouping, in
// [-1, 1]. Higher means tighter, better separated groups. Points alone in
// their group score 0, as does a grouping with fewer than two groups.
// assignments may be k-means output or the true labels.
func Silhouette(points [][2]float32, assignments []int) float32 {
	n := len(points)
	if n < 2 || len(assignments) != n {
		return 0
	}

	var total float32
	for i := 0; i < n; i++ {
		sums := make(map[int]float32)
		counts := make(map[int]int)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			sums[assignments[j]] += distance(points[i], points[j])
			counts[assignments[j]]++
		}

		own := assignments[i]
		if counts[own] == 0 {
			continue
		}
		a := sums[own] / float32(counts[own])

		b, found := float32(math.MaxFloat32), false
		for c, sum := range sums {
			if c == own {
				continue
			}
			if mean := sum / float32(counts[c]); mean < b {
				b, found = mean, true
			}
		}
		if !found {
			continue
		}

		if m := max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float32(n)
}
