package cluster

import (
	"context"
	"math"
)

// Noise is the label assigned to points not density-reachable from any
// cluster core.
const Noise = -1

// dbscan runs density-based clustering over the point set. A point is a
// core point when at least minPts points (itself included) lie within eps
// of it; clusters grow by expanding from core points. Returns one label per
// point, with Noise for unclustered points.
func dbscan(ctx context.Context, points [][]float64, eps float64, minPts int) ([]int, error) {
	const unvisited = -2

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	cluster := 0
	for i := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if labels[i] != unvisited {
			continue
		}

		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minPts {
			labels[i] = Noise
			continue
		}

		labels[i] = cluster
		// Expand the cluster from this core point. The seed queue grows as
		// new core points are found.
		queue := append([]int(nil), neighbors...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == Noise {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster

			jNeighbors := regionQuery(points, j, eps)
			if len(jNeighbors) >= minPts {
				queue = append(queue, jNeighbors...)
			}
		}
		cluster++
	}

	return labels, nil
}

// regionQuery returns the indices of all points within eps of points[i],
// including i itself.
func regionQuery(points [][]float64, i int, eps float64) []int {
	var neighbors []int
	for j := range points {
		if euclidean(points[i], points[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
