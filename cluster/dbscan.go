package cluster

import (
	"context"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/ensemble/distance"
	"github.com/hupe1980/ensemble/params"
	"gonum.org/v1/gonum/mat"
)

const dbscanName = "DBSCAN"

// DBSCAN is density-based clustering. Points with at least min_samples
// neighbours within eps (counting themselves) are core points; clusters are
// the connected components of core points plus their border points. Points
// reachable from no core point are labelled Noise.
//
// Recognized options: eps, min_samples, metric, algorithm, leaf_size, p,
// random_state. The cluster count k is ignored.
type DBSCAN struct {
	Logger *slog.Logger
}

type dbscanConfig struct {
	eps         float64
	minSamples  int
	metric      distance.Metric
	precomputed bool
	algorithm   string
	leafSize    int
	p           float64
}

// Fit implements Routine.
func (db *DBSCAN) Fit(ctx context.Context, data mat.Matrix, _ int, p params.Params) ([]int, error) {
	cfg, err := parseDBSCAN(p)
	if err != nil {
		return nil, err
	}

	rows, err := rowsOf(data, false)
	if err != nil {
		return nil, err
	}

	var index neighborIndex
	query := func(i int) []float64 { return rows[i] }

	switch {
	case cfg.precomputed:
		if len(rows) != len(rows[0]) {
			return nil, invalid(dbscanName, "metric", "precomputed", "distance matrix must be square")
		}
		index = &precomputedIndex{dist: rows}
		buf := make([]float64, 1)
		query = func(i int) []float64 {
			buf[0] = float64(i)
			return buf
		}
	default:
		fn, err := distance.Provider(cfg.metric, cfg.p)
		if err != nil {
			return nil, invalid(dbscanName, "p", cfg.p, err.Error())
		}
		if cfg.algorithm == "brute" || !distance.IsMinkowskiFamily(cfg.metric) {
			index = &bruteIndex{rows: rows, fn: fn}
		} else {
			index = newKDTree(rows, fn, cfg.leafSize)
		}
	}

	loggerOrDiscard(db.Logger).DebugContext(ctx, "dbscan index built",
		"algorithm", cfg.algorithm, "metric", cfg.metric.String(), "precomputed", cfg.precomputed)

	return dbscan(ctx, len(rows), cfg, index, query)
}

func dbscan(ctx context.Context, n int, cfg dbscanConfig, index neighborIndex, query func(int) []float64) ([]int, error) {
	neighbors := make([][]int, n)
	core := roaring.New()
	for i := 0; i < n; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		neighbors[i] = index.radius(query(i), cfg.eps, nil)
		if len(neighbors[i]) >= cfg.minSamples {
			core.Add(uint32(i))
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}

	visited := roaring.New()
	cluster := 0
	queue := make([]int, 0, n)

	it := core.Iterator()
	for it.HasNext() {
		seed := it.Next()
		if visited.Contains(seed) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		visited.Add(seed)
		labels[seed] = cluster
		queue = append(queue[:0], int(seed))

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if !core.Contains(uint32(cur)) {
				continue // border points do not expand
			}
			for _, nb := range neighbors[cur] {
				if visited.CheckedAdd(uint32(nb)) {
					labels[nb] = cluster
					queue = append(queue, nb)
				}
			}
		}
		cluster++
	}

	return labels, nil
}

func parseDBSCAN(p params.Params) (dbscanConfig, error) {
	var cfg dbscanConfig
	var err error

	if cfg.eps, err = p.Float("eps"); err != nil {
		return cfg, err
	}
	if !(cfg.eps > 0) {
		return cfg, invalid(dbscanName, "eps", cfg.eps, "must be > 0")
	}
	if cfg.minSamples, err = p.Int("min_samples"); err != nil {
		return cfg, err
	}
	if cfg.minSamples < 1 {
		return cfg, invalid(dbscanName, "min_samples", cfg.minSamples, "must be >= 1")
	}

	metric, err := p.String("metric")
	if err != nil {
		return cfg, err
	}
	if metric == "precomputed" {
		cfg.precomputed = true
	} else if cfg.metric, err = distance.Parse(metric); err != nil {
		return cfg, invalid(dbscanName, "metric", metric, err.Error())
	}

	if cfg.algorithm, err = p.String("algorithm"); err != nil {
		return cfg, err
	}
	switch cfg.algorithm {
	case "auto", "brute":
	case "kd_tree", "ball_tree":
		if cfg.precomputed {
			return cfg, invalid(dbscanName, "algorithm", cfg.algorithm, "tree indexes cannot use a precomputed metric")
		}
		if !distance.IsMinkowskiFamily(cfg.metric) {
			return cfg, invalid(dbscanName, "algorithm", cfg.algorithm, "tree indexes need a minkowski-family metric")
		}
	default:
		return cfg, invalid(dbscanName, "algorithm", cfg.algorithm, `must be "auto", "brute", "kd_tree" or "ball_tree"`)
	}

	if cfg.leafSize, err = p.Int("leaf_size"); err != nil {
		return cfg, err
	}
	if cfg.leafSize < 1 {
		return cfg, invalid(dbscanName, "leaf_size", cfg.leafSize, "must be >= 1")
	}

	power, ok, err := p.OptionalFloat("p")
	if err != nil {
		return cfg, err
	}
	cfg.p = 2
	if ok {
		if !(power >= 1) {
			return cfg, invalid(dbscanName, "p", power, "must be >= 1")
		}
		cfg.p = power
	}
	cfg.metric = minkowskiAlias(cfg.metric, cfg.p)

	return cfg, nil
}

// minkowskiAlias maps minkowski with p=1 or p=2 onto the dedicated metric.
func minkowskiAlias(m distance.Metric, p float64) distance.Metric {
	if m != distance.Minkowski {
		return m
	}
	switch p {
	case 1:
		return distance.Manhattan
	case 2:
		return distance.Euclidean
	}
	return m
}
