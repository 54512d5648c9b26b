// math/kdtree.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"slices"
)

// KDNode is a node in a 2D KD-tree over Point2LLs. Index identifies the
// point in the caller's original slice so that per-point payloads can be
// carried in parallel slices.
type KDNode struct {
	Location  Point2LL
	Index     int
	SplitAxis int
	Children  [2]*KDNode
}

type kdPoint struct {
	p   Point2LL
	idx int
}

// BuildKDTree constructs a balanced KD-tree from a slice of points,
// alternating the split axis between longitude and latitude at each
// level.
func BuildKDTree(points []Point2LL) *KDNode {
	kdp := make([]kdPoint, len(points))
	for i, p := range points {
		kdp[i] = kdPoint{p: p, idx: i}
	}
	return buildKDTreeRecursive(kdp, 0)
}

func buildKDTreeRecursive(points []kdPoint, depth int) *KDNode {
	if len(points) == 0 {
		return nil
	}

	axis := depth % 2
	if len(points) == 1 {
		return &KDNode{Location: points[0].p, Index: points[0].idx, SplitAxis: axis}
	}

	slices.SortFunc(points, func(a, b kdPoint) int {
		if a.p[axis] < b.p[axis] {
			return -1
		} else if a.p[axis] > b.p[axis] {
			return 1
		}
		return 0
	})

	median := len(points) / 2
	return &KDNode{
		Location:  points[median].p,
		Index:     points[median].idx,
		SplitAxis: axis,
		Children: [2]*KDNode{
			buildKDTreeRecursive(points[:median], depth+1),
			buildKDTreeRecursive(points[median+1:], depth+1),
		},
	}
}

// Nearest returns up to n tree nodes closest to p, ordered near to far,
// with distances measured in the local nautical-mile frame.
func (tree *KDNode) Nearest(p Point2LL, n int, nmPerLongitude float64) []*KDNode {
	if tree == nil || n <= 0 {
		return nil
	}

	nearest := make([]*KDNode, n)
	dist := make([]float64, n)

	var search func(node *KDNode)
	search = func(node *KDNode) {
		if node == nil {
			return
		}

		d := NMDistance2LLFast(p, node.Location, nmPerLongitude)
		for i := range n {
			if nearest[i] == nil || d < dist[i] {
				// Sort by distance, low to high
				for j := n - 1; j > i; j-- {
					nearest[j], dist[j] = nearest[j-1], dist[j-1]
				}
				nearest[i] = node
				dist[i] = d
				break
			}
		}

		// Always recurse on the side of the lookup point; do this first
		// to try to bring down the maximum distance.
		below := p[node.SplitAxis] < node.Location[node.SplitAxis]
		if below {
			search(node.Children[0])
		} else {
			search(node.Children[1])
		}

		// Recurse on the other side if nearest[]/dist[] aren't yet filled
		// and otherwise depending on the distance to the split plane
		// compared to the farthest point found so far.
		splitDist := p[node.SplitAxis] - node.Location[node.SplitAxis]
		if splitDist < 0 {
			splitDist = -splitDist
		}
		if node.SplitAxis == 0 {
			splitDist *= nmPerLongitude
		} else {
			splitDist *= NMPerLatitude
		}
		recurse := nearest[n-1] == nil || splitDist < dist[n-1]
		if recurse && below {
			search(node.Children[1])
		} else if recurse {
			search(node.Children[0])
		}
	}
	search(tree)

	for i, node := range nearest {
		if node == nil {
			return nearest[:i]
		}
	}
	return nearest
}
