package cluster

import (
	"math"
	"slices"
	"sort"

	"github.com/hupe1980/ensemble/distance"
)

// neighborIndex answers fixed-radius queries over the rows it was built from.
type neighborIndex interface {
	// radius appends to dst the indices of all rows within eps of q, in
	// ascending order.
	radius(q []float64, eps float64, dst []int) []int
}

// bruteIndex scans every row.
type bruteIndex struct {
	rows [][]float64
	fn   distance.Func
}

func (b *bruteIndex) radius(q []float64, eps float64, dst []int) []int {
	for i, r := range b.rows {
		if b.fn(q, r) <= eps {
			dst = append(dst, i)
		}
	}
	return dst
}

// precomputedIndex reads neighbourhoods from a distance matrix; the query is
// the row index encoded in q[0].
type precomputedIndex struct {
	dist [][]float64
}

func (p *precomputedIndex) radius(q []float64, eps float64, dst []int) []int {
	row := p.dist[int(q[0])]
	for j, d := range row {
		if d <= eps {
			dst = append(dst, j)
		}
	}
	return dst
}

// kdTree is a kd-tree over Minkowski-family metrics. Every coordinate
// difference is a lower bound on an L-p distance for p >= 1, which is what
// makes the split-plane pruning valid.
type kdTree struct {
	rows     [][]float64
	idx      []int
	fn       distance.Func
	leafSize int
	root     *kdNode
}

type kdNode struct {
	lo, hi      int // range into idx
	dim         int
	split       float64
	left, right *kdNode
}

func newKDTree(rows [][]float64, fn distance.Func, leafSize int) *kdTree {
	t := &kdTree{
		rows:     rows,
		idx:      make([]int, len(rows)),
		fn:       fn,
		leafSize: max(1, leafSize),
	}
	for i := range t.idx {
		t.idx[i] = i
	}
	t.root = t.build(0, len(rows))
	return t
}

func (t *kdTree) build(lo, hi int) *kdNode {
	node := &kdNode{lo: lo, hi: hi, dim: -1}
	if hi-lo <= t.leafSize {
		return node
	}

	// Split on the dimension with the widest spread.
	dim, spread := 0, -1.0
	for d := range t.rows[0] {
		mn, mx := math.Inf(1), math.Inf(-1)
		for _, i := range t.idx[lo:hi] {
			v := t.rows[i][d]
			mn = min(mn, v)
			mx = max(mx, v)
		}
		if mx-mn > spread {
			dim, spread = d, mx-mn
		}
	}
	if spread == 0 {
		return node // all points identical
	}

	part := t.idx[lo:hi]
	sort.Slice(part, func(a, b int) bool { return t.rows[part[a]][dim] < t.rows[part[b]][dim] })
	mid := lo + (hi-lo)/2

	node.dim = dim
	node.split = t.rows[t.idx[mid]][dim]
	node.left = t.build(lo, mid)
	node.right = t.build(mid, hi)
	return node
}

func (t *kdTree) radius(q []float64, eps float64, dst []int) []int {
	start := len(dst)
	dst = t.search(t.root, q, eps, dst)
	slices.Sort(dst[start:])
	return dst
}

func (t *kdTree) search(node *kdNode, q []float64, eps float64, dst []int) []int {
	if node.dim < 0 {
		for _, i := range t.idx[node.lo:node.hi] {
			if t.fn(q, t.rows[i]) <= eps {
				dst = append(dst, i)
			}
		}
		return dst
	}

	diff := q[node.dim] - node.split
	near, far := node.left, node.right
	if diff >= 0 {
		near, far = node.right, node.left
	}
	dst = t.search(near, q, eps, dst)
	if math.Abs(diff) <= eps {
		dst = t.search(far, q, eps, dst)
	}
	return dst
}

// nearest returns the indices of the k rows closest to row i (including i
// itself), ties broken by index.
func nearest(rows [][]float64, i, k int, fn distance.Func) []int {
	type cand struct {
		idx  int
		dist float64
	}
	cands := make([]cand, len(rows))
	for j, r := range rows {
		cands[j] = cand{idx: j, dist: fn(rows[i], r)}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })

	k = min(k, len(rows))
	out := make([]int, k)
	for j := range out {
		out[j] = cands[j].idx
	}
	return out
}
