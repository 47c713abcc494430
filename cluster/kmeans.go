package cluster

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/hupe1980/ensemble/distance"
	"github.com/hupe1980/ensemble/params"
	"github.com/hupe1980/ensemble/resource"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const kmeansName = "kmeans"

// precomputeAutoLimit is the n*k product up to which "auto" precomputes
// squared row norms.
const precomputeAutoLimit = 12e6

// KMeans is Lloyd's algorithm with k-means++ seeding and restarts.
//
// Recognized options: init, n_init, max_iter, tol, precompute_distances,
// verbose, random_state, copy_x, n_jobs.
type KMeans struct {
	// Logger receives per-iteration output when verbose > 0.
	Logger *slog.Logger

	// Resources gates concurrent restarts. May be nil.
	Resources *resource.Controller
}

type kmeansConfig struct {
	init       string
	centers    [][]float64
	nInit      int
	maxIter    int
	tol        float64
	precompute string // "auto", "true" or "false"
	verbose    int
	seed       int64
	copyX      bool
	nJobs      int
}

// Fit implements Routine.
func (km *KMeans) Fit(ctx context.Context, data mat.Matrix, k int, p params.Params) ([]int, error) {
	cfg, err := parseKMeans(p)
	if err != nil {
		return nil, err
	}

	rows, err := rowsOf(data, cfg.copyX)
	if err != nil {
		return nil, err
	}
	if err := checkClusters(kmeansName, len(rows), k); err != nil {
		return nil, err
	}
	if cfg.centers != nil {
		if len(cfg.centers) != k || len(cfg.centers[0]) != len(rows[0]) {
			return nil, invalid(kmeansName, "init", dimsOf(cfg.centers), "explicit centers must be n_clusters x n_features")
		}
		cfg.nInit = 1
	}

	labels, _, err := runKMeans(ctx, rows, k, cfg, loggerOrDiscard(km.Logger), km.Resources)
	return labels, err
}

func parseKMeans(p params.Params) (kmeansConfig, error) {
	var cfg kmeansConfig
	var err error

	switch v := p["init"].(type) {
	case string:
		if v != "k-means++" && v != "random" {
			return cfg, invalid(kmeansName, "init", v, `must be "k-means++", "random" or an array of centers`)
		}
		cfg.init = v
	case mat.Matrix:
		if cfg.centers, err = rowsOf(v, true); err != nil {
			return cfg, invalid(kmeansName, "init", v, err.Error())
		}
	case nil:
		return cfg, invalid(kmeansName, "init", v, `must be "k-means++", "random" or an array of centers`)
	default:
		// Typed tables and the nested lists of overlay documents.
		centers, rerr := params.ToRows(v)
		if rerr != nil {
			return cfg, invalid(kmeansName, "init", v, `must be "k-means++", "random" or an array of centers: `+rerr.Error())
		}
		if len(centers) == 0 || len(centers[0]) == 0 {
			return cfg, invalid(kmeansName, "init", v, "explicit centers are empty")
		}
		cfg.centers = centers
	}

	if cfg.nInit, err = p.Int("n_init"); err != nil {
		return cfg, err
	}
	if cfg.nInit < 1 {
		return cfg, invalid(kmeansName, "n_init", cfg.nInit, "must be >= 1")
	}
	if cfg.maxIter, err = p.Int("max_iter"); err != nil {
		return cfg, err
	}
	if cfg.maxIter < 1 {
		return cfg, invalid(kmeansName, "max_iter", cfg.maxIter, "must be >= 1")
	}
	if cfg.tol, err = p.Float("tol"); err != nil {
		return cfg, err
	}
	if cfg.tol < 0 {
		return cfg, invalid(kmeansName, "tol", cfg.tol, "must be >= 0")
	}

	switch v := p["precompute_distances"].(type) {
	case string:
		if v != "auto" {
			return cfg, invalid(kmeansName, "precompute_distances", v, `must be "auto", true or false`)
		}
		cfg.precompute = "auto"
	case bool:
		if v {
			cfg.precompute = "true"
		} else {
			cfg.precompute = "false"
		}
	default:
		return cfg, invalid(kmeansName, "precompute_distances", v, `must be "auto", true or false`)
	}

	if cfg.verbose, err = p.Int("verbose"); err != nil {
		return cfg, err
	}
	if cfg.seed, err = seedOf(p); err != nil {
		return cfg, err
	}
	if cfg.copyX, err = p.Bool("copy_x"); err != nil {
		return cfg, err
	}
	if cfg.nJobs, err = jobsOf(kmeansName, p); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// seedOf reads random_state. nil picks a time-based seed.
func seedOf(p params.Params) (int64, error) {
	seed, ok, err := p.OptionalInt("random_state")
	if err != nil {
		return 0, err
	}
	if !ok {
		return time.Now().UnixNano(), nil
	}
	return int64(seed), nil
}

// jobsOf reads n_jobs. nil means one job; negative values count back from
// the number of CPUs (-1 uses all of them).
func jobsOf(algorithm string, p params.Params) (int, error) {
	n, ok, err := p.OptionalInt("n_jobs")
	if err != nil {
		return 0, err
	}
	switch {
	case !ok:
		return 1, nil
	case n == 0:
		return 0, invalid(algorithm, "n_jobs", n, "must not be 0")
	case n < 0:
		return max(1, runtime.NumCPU()+1+n), nil
	default:
		return n, nil
	}
}

func dimsOf(rows [][]float64) [2]int {
	if len(rows) == 0 {
		return [2]int{0, 0}
	}
	return [2]int{len(rows), len(rows[0])}
}

type kmeansRun struct {
	labels  []int
	inertia float64
}

// runKMeans performs cfg.nInit restarts and keeps the one with the lowest
// inertia. Restart seeds are drawn up front so results do not depend on
// n_jobs.
func runKMeans(ctx context.Context, rows [][]float64, k int, cfg kmeansConfig, logger *slog.Logger, rc *resource.Controller) ([]int, float64, error) {
	base := rand.New(rand.NewSource(cfg.seed))
	seeds := make([]int64, cfg.nInit)
	for i := range seeds {
		seeds[i] = base.Int63()
	}

	tol := cfg.tol * meanVariance(rows)
	var norms []float64
	if cfg.precompute == "true" || (cfg.precompute == "auto" && float64(len(rows))*float64(k) <= precomputeAutoLimit) {
		norms = make([]float64, len(rows))
		for i, r := range rows {
			norms[i] = floats.Dot(r, r)
		}
	}

	results := make([]kmeansRun, cfg.nInit)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.nJobs))

	for r := range cfg.nInit {
		g.Go(func() error {
			if err := rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer rc.ReleaseWorker()

			rng := rand.New(rand.NewSource(seeds[r]))
			var centers [][]float64
			if cfg.centers != nil {
				centers = cloneRows(cfg.centers)
			} else if cfg.init == "random" {
				centers = randomCenters(rows, k, rng)
			} else {
				centers = plusPlusCenters(rows, k, rng)
			}

			labels, inertia, err := lloyd(gctx, rows, norms, centers, cfg.maxIter, tol, func(iter int, inertia float64) {
				if cfg.verbose > 0 {
					logger.InfoContext(gctx, "kmeans iteration", "restart", r, "iteration", iter, "inertia", inertia)
				}
			})
			if err != nil {
				return err
			}
			results[r] = kmeansRun{labels: labels, inertia: inertia}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	best := 0
	for r := 1; r < len(results); r++ {
		if results[r].inertia < results[best].inertia {
			best = r
		}
	}
	return results[best].labels, results[best].inertia, nil
}

// lloyd iterates assignment and update steps until the squared center shift
// drops to tol or maxIter is reached. centers is updated in place.
func lloyd(ctx context.Context, rows [][]float64, norms []float64, centers [][]float64, maxIter int, tol float64, onIter func(int, float64)) ([]int, float64, error) {
	n := len(rows)
	k := len(centers)
	dim := len(rows[0])

	labels := make([]int, n)
	dists := make([]float64, n)
	counts := make([]int, k)
	sums := make([][]float64, k)
	for j := range sums {
		sums[j] = make([]float64, dim)
	}

	inertia := assign(rows, norms, centers, labels, dists)
	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		// Update step
		for j := range sums {
			clear(sums[j])
			counts[j] = 0
		}
		for i, r := range rows {
			floats.Add(sums[labels[i]], r)
			counts[labels[i]]++
		}

		shift := 0.0
		for j := range centers {
			if counts[j] == 0 {
				// Relocate an empty cluster to the point farthest from its center.
				far := floats.MaxIdx(dists)
				dists[far] = 0
				shift += distance.SquaredL2(centers[j], rows[far])
				copy(centers[j], rows[far])
				continue
			}
			floats.Scale(1/float64(counts[j]), sums[j])
			shift += distance.SquaredL2(centers[j], sums[j])
			copy(centers[j], sums[j])
		}

		inertia = assign(rows, norms, centers, labels, dists)
		onIter(iter, inertia)

		if shift <= tol {
			break
		}
	}

	return labels, inertia, nil
}

// assign writes the closest center of every row to labels and the squared
// distance to dists, returning the inertia.
func assign(rows [][]float64, norms []float64, centers [][]float64, labels []int, dists []float64) float64 {
	var cnorms []float64
	if norms != nil {
		cnorms = make([]float64, len(centers))
		for j, c := range centers {
			cnorms[j] = floats.Dot(c, c)
		}
	}

	inertia := 0.0
	for i, r := range rows {
		best := 0
		bestDist := math.Inf(1)
		for j, c := range centers {
			var d float64
			if norms != nil {
				d = max(0, norms[i]+cnorms[j]-2*floats.Dot(r, c))
			} else {
				d = distance.SquaredL2(r, c)
			}
			if d < bestDist {
				bestDist = d
				best = j
			}
		}
		labels[i] = best
		dists[i] = bestDist
		inertia += bestDist
	}
	return inertia
}

func randomCenters(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	perm := rng.Perm(len(rows))
	centers := make([][]float64, k)
	for i := range centers {
		centers[i] = append([]float64(nil), rows[perm[i]]...)
	}
	return centers
}

// plusPlusCenters is greedy k-means++: each step samples 2+log(k) candidates
// proportionally to the current squared distances and keeps the one that
// lowers the potential the most.
func plusPlusCenters(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	trials := 2 + int(math.Log(float64(k)))

	centers := make([][]float64, 0, k)
	first := rng.Intn(n)
	centers = append(centers, append([]float64(nil), rows[first]...))

	closest := make([]float64, n)
	for i, r := range rows {
		closest[i] = distance.SquaredL2(r, centers[0])
	}
	potential := floats.Sum(closest)

	cumulative := make([]float64, n)
	candidate := make([]float64, n)
	best := make([]float64, n)

	for len(centers) < k {
		bestIdx := -1
		bestPotential := math.Inf(1)

		for range trials {
			var idx int
			if potential <= 0 {
				idx = rng.Intn(n)
			} else {
				floats.CumSum(cumulative, closest)
				target := rng.Float64() * cumulative[n-1]
				idx = sort.Search(n, func(i int) bool { return cumulative[i] > target })
				if idx >= n {
					idx = n - 1
				}
			}

			sum := 0.0
			for i, r := range rows {
				candidate[i] = min(closest[i], distance.SquaredL2(r, rows[idx]))
				sum += candidate[i]
			}
			if sum < bestPotential {
				bestPotential = sum
				bestIdx = idx
				copy(best, candidate)
			}
		}

		centers = append(centers, append([]float64(nil), rows[bestIdx]...))
		copy(closest, best)
		potential = bestPotential
	}
	return centers
}

// meanVariance is the mean of the per-feature population variances.
func meanVariance(rows [][]float64) float64 {
	dim := len(rows[0])
	col := make([]float64, len(rows))
	total := 0.0
	for d := 0; d < dim; d++ {
		for i, r := range rows {
			col[i] = r[d]
		}
		total += stat.PopVariance(col, nil)
	}
	return total / float64(dim)
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i := range rows {
		out[i] = append([]float64(nil), rows[i]...)
	}
	return out
}
