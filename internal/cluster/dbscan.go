// Package cluster groups embedded messages into coarse categories.
package cluster

import "math"

// Noise is the label of points that belong to no cluster.
const Noise = -1

const unvisited = -2

// DBSCAN labels points by density. A point is core when at least minSamples
// points, itself included, lie within eps. Cluster labels start at 0 and
// follow the order in which core points are first reached.
func DBSCAN(points [][]float64, eps float64, minSamples int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	next := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		seeds := neighbours(points, i, eps)
		if len(seeds) < minSamples {
			labels[i] = Noise
			continue
		}
		cluster := next
		next++
		labels[i] = cluster
		for q := 0; q < len(seeds); q++ {
			j := seeds[q]
			if labels[j] == Noise {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if more := neighbours(points, j, eps); len(more) >= minSamples {
				seeds = append(seeds, more...)
			}
		}
	}
	return labels
}

func neighbours(points [][]float64, i int, eps float64) []int {
	var out []int
	for j := range points {
		if distance(points[i], points[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

// distance is Euclidean over the shorter of the two vectors.
func distance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for k := 0; k < n; k++ {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
