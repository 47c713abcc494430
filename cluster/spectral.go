package cluster

import (
	"context"
	"log/slog"
	"math"
	"math/rand"

	"github.com/hupe1980/ensemble/distance"
	"github.com/hupe1980/ensemble/params"
	"github.com/hupe1980/ensemble/resource"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const spectralName = "spectral"

const (
	discretizeRestarts = 30
	discretizeMaxIter  = 20
)

// Spectral embeds the rows with the leading eigenvectors of the normalized
// affinity matrix and clusters the embedding.
//
// Recognized options: eigen_solver, random_state, n_init, gamma, affinity,
// n_neighbors, eigen_tol, assign_labels, degree, coef0, kernel_params.
type Spectral struct {
	Logger *slog.Logger

	// Resources accounts for the n*n affinity matrix and gates the k-means
	// restarts. May be nil.
	Resources *resource.Controller
}

type spectralConfig struct {
	solver    string
	seed      int64
	nInit     int
	gamma     float64
	affinity  string
	neighbors int
	eigenTol  float64
	assign    string
	degree    float64
	coef0     float64
}

// Fit implements Routine.
func (s *Spectral) Fit(ctx context.Context, data mat.Matrix, k int, p params.Params) ([]int, error) {
	cfg, err := parseSpectral(p)
	if err != nil {
		return nil, err
	}

	rows, err := rowsOf(data, false)
	if err != nil {
		return nil, err
	}
	n := len(rows)
	if err := checkClusters(spectralName, n, k); err != nil {
		return nil, err
	}
	if cfg.affinity == "precomputed" && n != len(rows[0]) {
		return nil, invalid(spectralName, "affinity", cfg.affinity, "affinity matrix must be square")
	}

	// Affinity and eigenvector storage.
	bytes := int64(2 * n * n * 8)
	if err := s.Resources.AcquireMemory(ctx, bytes); err != nil {
		return nil, err
	}
	defer s.Resources.ReleaseMemory(bytes)

	logger := loggerOrDiscard(s.Logger)
	logger.DebugContext(ctx, "spectral embedding", "affinity", cfg.affinity, "solver", cfg.solver, "eigen_tol", cfg.eigenTol, "n", n)

	aff, err := affinityMatrix(ctx, rows, cfg)
	if err != nil {
		return nil, err
	}
	emb, err := embed(aff, k)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.assign == "discretize" {
		return discretize(emb, cfg.seed)
	}

	embRows := make([][]float64, n)
	for i := range embRows {
		embRows[i] = emb.RawRowView(i)
	}
	labels, _, err := runKMeans(ctx, embRows, k, kmeansConfig{
		init:       "k-means++",
		nInit:      cfg.nInit,
		maxIter:    300,
		tol:        1e-4,
		precompute: "auto",
		seed:       cfg.seed,
		nJobs:      1,
	}, logger, s.Resources)
	return labels, err
}

func parseSpectral(p params.Params) (spectralConfig, error) {
	var cfg spectralConfig
	var err error

	solver, ok, err := p.OptionalString("eigen_solver")
	if err != nil {
		return cfg, err
	}
	switch {
	case !ok:
		cfg.solver = "dense"
	case solver == "arpack", solver == "lobpcg", solver == "dense":
		cfg.solver = solver
	case solver == "amg":
		return cfg, invalid(spectralName, "eigen_solver", solver, "amg is not supported")
	default:
		return cfg, invalid(spectralName, "eigen_solver", solver, `must be nil, "arpack", "lobpcg" or "dense"`)
	}

	if cfg.seed, err = seedOf(p); err != nil {
		return cfg, err
	}
	if cfg.nInit, err = p.Int("n_init"); err != nil {
		return cfg, err
	}
	if cfg.nInit < 1 {
		return cfg, invalid(spectralName, "n_init", cfg.nInit, "must be >= 1")
	}
	if cfg.gamma, err = p.Float("gamma"); err != nil {
		return cfg, err
	}
	if cfg.degree, err = p.Float("degree"); err != nil {
		return cfg, err
	}
	if cfg.coef0, err = p.Float("coef0"); err != nil {
		return cfg, err
	}

	kernel, err := p.Map("kernel_params")
	if err != nil {
		return cfg, err
	}
	if kernel.Has("gamma") {
		if cfg.gamma, err = kernel.Float("gamma"); err != nil {
			return cfg, err
		}
	}
	if kernel.Has("degree") {
		if cfg.degree, err = kernel.Float("degree"); err != nil {
			return cfg, err
		}
	}
	if kernel.Has("coef0") {
		if cfg.coef0, err = kernel.Float("coef0"); err != nil {
			return cfg, err
		}
	}

	if cfg.affinity, err = p.String("affinity"); err != nil {
		return cfg, err
	}
	switch cfg.affinity {
	case "rbf", "laplacian":
		if !(cfg.gamma > 0) {
			return cfg, invalid(spectralName, "gamma", cfg.gamma, "must be > 0")
		}
	case "nearest_neighbors":
		if cfg.neighbors, err = p.Int("n_neighbors"); err != nil {
			return cfg, err
		}
		if cfg.neighbors < 1 {
			return cfg, invalid(spectralName, "n_neighbors", cfg.neighbors, "must be >= 1")
		}
	case "precomputed", "linear", "poly", "sigmoid", "cosine":
	default:
		return cfg, invalid(spectralName, "affinity", cfg.affinity,
			`must be one of "rbf", "nearest_neighbors", "precomputed", "linear", "poly", "sigmoid", "laplacian", "cosine"`)
	}

	if cfg.eigenTol, err = p.Float("eigen_tol"); err != nil {
		return cfg, err
	}
	if cfg.eigenTol < 0 {
		return cfg, invalid(spectralName, "eigen_tol", cfg.eigenTol, "must be >= 0")
	}

	if cfg.assign, err = p.String("assign_labels"); err != nil {
		return cfg, err
	}
	if cfg.assign != "kmeans" && cfg.assign != "discretize" {
		return cfg, invalid(spectralName, "assign_labels", cfg.assign, `must be "kmeans" or "discretize"`)
	}

	return cfg, nil
}

// affinityMatrix builds the symmetric n x n affinity of rows.
func affinityMatrix(ctx context.Context, rows [][]float64, cfg spectralConfig) (*mat.SymDense, error) {
	n := len(rows)
	aff := mat.NewSymDense(n, nil)

	if cfg.affinity == "nearest_neighbors" {
		// Connectivity including self, symmetrized as (C + C^T) / 2.
		for i := range rows {
			for _, j := range nearest(rows, i, cfg.neighbors, distance.SquaredL2) {
				w := 0.5
				if i == j {
					w = 1
				}
				aff.SetSym(i, j, aff.At(i, j)+w)
			}
		}
		return aff, ctx.Err()
	}

	var kernel func(a, b []float64) float64
	switch cfg.affinity {
	case "precomputed":
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				aff.SetSym(i, j, (rows[i][j]+rows[j][i])/2)
			}
		}
		return aff, nil
	case "rbf":
		kernel = func(a, b []float64) float64 { return math.Exp(-cfg.gamma * distance.SquaredL2(a, b)) }
	case "laplacian":
		kernel = func(a, b []float64) float64 { return math.Exp(-cfg.gamma * floats.Distance(a, b, 1)) }
	case "linear":
		kernel = floats.Dot
	case "poly":
		kernel = func(a, b []float64) float64 { return math.Pow(cfg.gamma*floats.Dot(a, b)+cfg.coef0, cfg.degree) }
	case "sigmoid":
		kernel = func(a, b []float64) float64 { return math.Tanh(cfg.gamma*floats.Dot(a, b) + cfg.coef0) }
	case "cosine":
		kernel = func(a, b []float64) float64 { return 1 - distance.CosineDistance(a, b) }
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i; j < n; j++ {
			aff.SetSym(i, j, kernel(rows[i], rows[j]))
		}
	}
	return aff, nil
}

// embed returns the n x k spectral embedding: the eigenvectors of the k
// largest eigenvalues of D^-1/2 A D^-1/2, rescaled by D^-1/2, each with its
// largest-magnitude entry made positive.
func embed(aff *mat.SymDense, k int) (*mat.Dense, error) {
	n := aff.SymmetricDim()

	dd := make([]float64, n)
	for i := range dd {
		deg := 0.0
		for j := 0; j < n; j++ {
			deg += aff.At(i, j)
		}
		if deg > 0 {
			dd[i] = math.Sqrt(deg)
		} else {
			dd[i] = 1 // isolated node
		}
	}

	norm := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			norm.SetSym(i, j, aff.At(i, j)/(dd[i]*dd[j]))
		}
	}

	var es mat.EigenSym
	if !es.Factorize(norm, true) {
		return nil, ErrNotConverged
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Eigenvalues are ascending; take the last k columns, largest first.
	emb := mat.NewDense(n, k, nil)
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		mat.Col(col, n-1-j, &vecs)
		floats.Div(col, dd)

		if col[floats.MaxIdx(absInto(make([]float64, n), col))] < 0 {
			floats.Scale(-1, col)
		}
		emb.SetCol(j, col)
	}
	return emb, nil
}

func absInto(dst, src []float64) []float64 {
	for i, v := range src {
		dst[i] = math.Abs(v)
	}
	return dst
}

// discretize finds the discrete partition closest to the embedding (Yu and
// Shi, "Multiclass spectral clustering", 2003).
func discretize(emb *mat.Dense, seed int64) ([]int, error) {
	n, k := emb.Dims()
	vectors := mat.DenseCopyOf(emb)

	// Unit-norm columns scaled by sqrt(n), sign fixed by the first row.
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		mat.Col(col, j, vectors)
		if nrm := floats.Norm(col, 2); nrm > 0 {
			floats.Scale(math.Sqrt(float64(n))/nrm, col)
		}
		if col[0] != 0 {
			floats.Scale(-math.Copysign(1, col[0]), col)
		}
		vectors.SetCol(j, col)
	}
	// Then unit-norm rows.
	for i := 0; i < n; i++ {
		row := vectors.RawRowView(i)
		if nrm := floats.Norm(row, 2); nrm > 0 {
			floats.Scale(1/nrm, row)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	eps := math.Nextafter(1, 2) - 1

	for restart := 0; restart < discretizeRestarts; restart++ {
		// Initial rotation from k rows that are as orthogonal as possible.
		rotation := mat.NewDense(k, k, nil)
		rotation.SetCol(0, vectors.RawRowView(rng.Intn(n)))
		c := make([]float64, n)
		proj := mat.NewVecDense(n, nil)
		for j := 1; j < k; j++ {
			proj.MulVec(vectors, rotation.ColView(j-1))
			for i := range c {
				c[i] += math.Abs(proj.AtVec(i))
			}
			rotation.SetCol(j, vectors.RawRowView(floats.MinIdx(c)))
		}

		labels := make([]int, n)
		last := 0.0
		ok := true
		for iter := 1; ; iter++ {
			var t mat.Dense
			t.Mul(vectors, rotation)
			for i := range labels {
				labels[i] = floats.MaxIdx(t.RawRowView(i))
			}

			// t_svd = onehot(labels)^T * vectors
			tsvd := mat.NewDense(k, k, nil)
			for i, l := range labels {
				row := tsvd.RawRowView(l)
				floats.Add(row, vectors.RawRowView(i))
			}

			var svd mat.SVD
			if !svd.Factorize(tsvd, mat.SVDFull) {
				ok = false
				break
			}
			ncut := 2 * (float64(n) - floats.Sum(svd.Values(nil)))
			if math.Abs(ncut-last) < eps || iter > discretizeMaxIter {
				break
			}
			last = ncut

			var u, v mat.Dense
			svd.UTo(&u)
			svd.VTo(&v)
			rotation.Mul(&v, u.T())
		}
		if ok {
			return labels, nil
		}
	}
	return nil, ErrNotConverged
}
