package cluster

import (
	"context"
	"log/slog"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/ensemble/distance"
	"github.com/hupe1980/ensemble/params"
	"github.com/hupe1980/ensemble/resource"
	"gonum.org/v1/gonum/mat"
)

const agglomerativeName = "agglomerative"

// Linkage criteria.
const (
	LinkageWard     = "ward"
	LinkageComplete = "complete"
	LinkageAverage  = "average"
	LinkageSingle   = "single"
)

// PoolingFunc reduces the values of a merged cluster to one value.
type PoolingFunc = func([]float64) float64

// Agglomerative is bottom-up hierarchical clustering. Starting from
// singletons it repeatedly merges the closest pair of clusters under the
// linkage criterion until k clusters remain.
//
// Recognized options: affinity, connectivity, n_components, compute_full_tree,
// linkage, pooling_func.
type Agglomerative struct {
	Logger *slog.Logger

	// Resources accounts for the n*n distance matrix. May be nil.
	Resources *resource.Controller
}

// Merge is one step of the dendrogram: clusters A and B (identified by
// their lowest original row) joined at Height.
type Merge struct {
	A, B   int
	Height float64
}

type agglomerativeConfig struct {
	metric       distance.Metric
	precomputed  bool
	connectivity any
	fullTree     string // "auto", "true" or "false"
	linkage      string
	pooling      string
}

// Fit implements Routine.
func (a *Agglomerative) Fit(ctx context.Context, data mat.Matrix, k int, p params.Params) ([]int, error) {
	labels, _, err := a.Tree(ctx, data, k, p)
	return labels, err
}

// Tree clusters data like Fit and also returns the merges performed, in
// order. With compute_full_tree the merges continue past k down to a single
// cluster; the labels are always the cut at k.
func (a *Agglomerative) Tree(ctx context.Context, data mat.Matrix, k int, p params.Params) ([]int, []Merge, error) {
	cfg, err := parseAgglomerative(p)
	if err != nil {
		return nil, nil, err
	}

	rows, err := rowsOf(data, false)
	if err != nil {
		return nil, nil, err
	}
	n := len(rows)
	if err := checkClusters(agglomerativeName, n, k); err != nil {
		return nil, nil, err
	}
	if cfg.precomputed && n != len(rows[0]) {
		return nil, nil, invalid(agglomerativeName, "affinity", "precomputed", "distance matrix must be square")
	}

	logger := loggerOrDiscard(a.Logger)

	adj, err := adjacencyOf(cfg.connectivity, n)
	if err != nil {
		return nil, nil, err
	}

	bytes := int64(n * n * 8)
	if err := a.Resources.AcquireMemory(ctx, bytes); err != nil {
		return nil, nil, err
	}
	defer a.Resources.ReleaseMemory(bytes)

	var dist [][]float64
	switch {
	case cfg.precomputed:
		dist = make([][]float64, n)
		for i := range rows {
			dist[i] = append([]float64(nil), rows[i]...)
		}
	case cfg.linkage == LinkageWard:
		dist = distance.Pairwise(rows, distance.SquaredL2)
	default:
		fn, err := distance.Provider(cfg.metric, 2)
		if err != nil {
			return nil, nil, invalid(agglomerativeName, "affinity", cfg.metric.String(), err.Error())
		}
		dist = distance.Pairwise(rows, fn)
	}

	if adj != nil {
		if comps := bridgeComponents(adj, dist); comps > 1 {
			logger.WarnContext(ctx, "connectivity graph is not connected, joining components by their closest points",
				"components", comps)
		}
	}

	stop := k
	if cfg.fullTree == "true" || (cfg.fullTree == "auto" && k < max(100, int(0.02*float64(n)))) {
		stop = 1
	}

	logger.DebugContext(ctx, "agglomerative clustering",
		"linkage", cfg.linkage, "full_tree", stop == 1, "pooling_func", cfg.pooling, "constrained", adj != nil)

	merges, err := linkage(ctx, dist, adj, cfg.linkage, n-stop)
	if err != nil {
		return nil, nil, err
	}

	if len(merges) < n-k {
		return nil, nil, invalid(agglomerativeName, "connectivity", len(merges), "graph does not allow enough merges")
	}

	return cutTree(n, merges[:n-k]), merges, nil
}

func parseAgglomerative(p params.Params) (agglomerativeConfig, error) {
	var cfg agglomerativeConfig
	var err error

	if cfg.linkage, err = p.String("linkage"); err != nil {
		return cfg, err
	}
	switch cfg.linkage {
	case LinkageWard, LinkageComplete, LinkageAverage, LinkageSingle:
	default:
		return cfg, invalid(agglomerativeName, "linkage", cfg.linkage, `must be "ward", "complete", "average" or "single"`)
	}

	affinity, err := p.String("affinity")
	if err != nil {
		return cfg, err
	}
	if affinity == "precomputed" {
		cfg.precomputed = true
	} else if cfg.metric, err = distance.Parse(affinity); err != nil {
		return cfg, invalid(agglomerativeName, "affinity", affinity, err.Error())
	}
	if cfg.linkage == LinkageWard && (cfg.precomputed || cfg.metric != distance.Euclidean) {
		return cfg, invalid(agglomerativeName, "affinity", affinity, "ward linkage only works with euclidean distances")
	}

	cfg.connectivity = p["connectivity"]

	switch v := p["compute_full_tree"].(type) {
	case string:
		if v != "auto" {
			return cfg, invalid(agglomerativeName, "compute_full_tree", v, `must be "auto", true or false`)
		}
		cfg.fullTree = "auto"
	case bool:
		if v {
			cfg.fullTree = "true"
		} else {
			cfg.fullTree = "false"
		}
	default:
		return cfg, invalid(agglomerativeName, "compute_full_tree", v, `must be "auto", true or false`)
	}

	switch v := p["pooling_func"].(type) {
	case string:
		switch v {
		case "mean", "median", "max", "min", "sum":
			cfg.pooling = v
		default:
			return cfg, invalid(agglomerativeName, "pooling_func", v, `must be "mean", "median", "max", "min", "sum" or a function`)
		}
	case PoolingFunc:
		if v == nil {
			return cfg, invalid(agglomerativeName, "pooling_func", v, "function is nil")
		}
		cfg.pooling = "custom"
	default:
		return cfg, invalid(agglomerativeName, "pooling_func", v, `must be "mean", "median", "max", "min", "sum" or a function`)
	}

	return cfg, nil
}

// adjacencyOf converts a connectivity option into symmetric neighbour sets
// without self loops. nil means unconstrained.
func adjacencyOf(v any, n int) ([]*roaring.Bitmap, error) {
	var edge func(i, j int) bool
	switch c := v.(type) {
	case nil:
		return nil, nil
	case mat.Matrix:
		if r, cc := c.Dims(); r != n || cc != n {
			return nil, invalid(agglomerativeName, "connectivity", [2]int{r, cc}, "must be n_samples x n_samples")
		}
		edge = func(i, j int) bool { return c.At(i, j) != 0 }
	case [][]bool:
		if !square(len(c), n, func(i int) int { return len(c[i]) }) {
			return nil, invalid(agglomerativeName, "connectivity", len(c), "must be n_samples x n_samples")
		}
		edge = func(i, j int) bool { return c[i][j] }
	default:
		rows, err := params.ToRows(v)
		if err != nil {
			return nil, invalid(agglomerativeName, "connectivity", v, "must be nil or an n_samples x n_samples adjacency matrix")
		}
		if !square(len(rows), n, func(i int) int { return len(rows[i]) }) {
			return nil, invalid(agglomerativeName, "connectivity", len(rows), "must be n_samples x n_samples")
		}
		edge = func(i, j int) bool { return rows[i][j] != 0 }
	}

	adj := make([]*roaring.Bitmap, n)
	for i := range adj {
		adj[i] = roaring.New()
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && edge(i, j) {
				adj[i].Add(uint32(j))
				adj[j].Add(uint32(i))
			}
		}
	}
	return adj, nil
}

func square(rows, n int, cols func(int) int) bool {
	if rows != n {
		return false
	}
	for i := 0; i < rows; i++ {
		if cols(i) != n {
			return false
		}
	}
	return true
}

// bridgeComponents links every pair of connected components through their
// closest points and returns the number of components found.
func bridgeComponents(adj []*roaring.Bitmap, dist [][]float64) int {
	n := len(adj)
	comp := make([]int, n)
	for i := range comp {
		comp[i] = -1
	}

	count := 0
	stack := make([]int, 0, n)
	for s := 0; s < n; s++ {
		if comp[s] >= 0 {
			continue
		}
		comp[s] = count
		stack = append(stack[:0], s)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			it := adj[cur].Iterator()
			for it.HasNext() {
				nb := int(it.Next())
				if comp[nb] < 0 {
					comp[nb] = count
					stack = append(stack, nb)
				}
			}
		}
		count++
	}
	if count == 1 {
		return 1
	}

	type bridge struct {
		i, j int
		d    float64
	}
	best := make(map[[2]int]bridge)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ci, cj := comp[i], comp[j]
			if ci == cj {
				continue
			}
			key := [2]int{min(ci, cj), max(ci, cj)}
			if b, ok := best[key]; !ok || dist[i][j] < b.d {
				best[key] = bridge{i: i, j: j, d: dist[i][j]}
			}
		}
	}
	for _, b := range best {
		adj[b.i].Add(uint32(b.j))
		adj[b.j].Add(uint32(b.i))
	}
	return count
}

// linkage performs up to steps merges on the distance matrix dist, which is
// updated in place with the Lance-Williams recurrence. When adj is non-nil
// only adjacent clusters may merge.
func linkage(ctx context.Context, dist [][]float64, adj []*roaring.Bitmap, method string, steps int) ([]Merge, error) {
	n := len(dist)
	size := make([]int, n)
	active := roaring.New()
	for i := range size {
		size[i] = 1
		active.Add(uint32(i))
	}

	candidates := func(i int) *roaring.Bitmap {
		if adj == nil {
			return active
		}
		return adj[i]
	}

	nn := make([]int, n)
	nnDist := make([]float64, n)
	refresh := func(i int) {
		nn[i], nnDist[i] = -1, math.Inf(1)
		it := candidates(i).Iterator()
		for it.HasNext() {
			j := int(it.Next())
			if j != i && dist[i][j] < nnDist[i] {
				nn[i], nnDist[i] = j, dist[i][j]
			}
		}
	}
	for i := 0; i < n; i++ {
		refresh(i)
	}

	merges := make([]Merge, 0, steps)
	for len(merges) < steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src, height := -1, math.Inf(1)
		it := active.Iterator()
		for it.HasNext() {
			i := int(it.Next())
			if nn[i] >= 0 && nnDist[i] < height {
				src, height = i, nnDist[i]
			}
		}
		if src < 0 {
			break // no mergeable pair left
		}

		a, b := min(src, nn[src]), max(src, nn[src])
		merges = append(merges, Merge{A: a, B: b, Height: height})

		na, nb := float64(size[a]), float64(size[b])
		dab := dist[a][b]
		it = active.Iterator()
		for it.HasNext() {
			k := int(it.Next())
			if k == a || k == b {
				continue
			}
			nk := float64(size[k])
			var d float64
			switch method {
			case LinkageWard:
				d = ((na+nk)*dist[k][a] + (nb+nk)*dist[k][b] - nk*dab) / (na + nb + nk)
			case LinkageComplete:
				d = max(dist[k][a], dist[k][b])
			case LinkageAverage:
				d = (na*dist[k][a] + nb*dist[k][b]) / (na + nb)
			case LinkageSingle:
				d = min(dist[k][a], dist[k][b])
			}
			dist[k][a], dist[a][k] = d, d
		}
		size[a] += size[b]
		active.Remove(uint32(b))

		if adj != nil {
			adj[a].Or(adj[b])
			adj[a].Remove(uint32(a))
			adj[a].Remove(uint32(b))
			bit := adj[b].Iterator()
			for bit.HasNext() {
				k := bit.Next()
				adj[k].Remove(uint32(b))
				if int(k) != a {
					adj[k].Add(uint32(a))
				}
			}
			adj[b].Clear()
		}

		refresh(a)
		it = active.Iterator()
		for it.HasNext() {
			k := int(it.Next())
			if k == a {
				continue
			}
			switch {
			case nn[k] == a || nn[k] == b:
				refresh(k)
			case candidates(k).Contains(uint32(a)) && dist[k][a] < nnDist[k]:
				nn[k], nnDist[k] = a, dist[k][a]
			}
		}
	}

	return merges, nil
}

// cutTree labels the clusters formed by applying merges to n singletons.
func cutTree(n int, merges []Merge) []int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, m := range merges {
		ra, rb := find(m.A), find(m.B)
		if ra != rb {
			parent[rb] = ra
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = find(i)
	}
	return relabel(labels)
}
