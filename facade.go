package ensemble

import (
	"context"
	"time"

	"github.com/hupe1980/ensemble/cluster"
	"github.com/hupe1980/ensemble/params"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Facade runs clustering algorithms over one dataset with one option
// overlay. It holds only read-only state, so concurrent invocations are safe.
type Facade struct {
	data    mat.Matrix
	overlay params.Params
	opts    options
}

// New creates a Facade. The dataset and overlay are stored as given and
// are not validated here; problems surface when an algorithm runs.
//
// The overlay may carry options for several algorithms at once. Each
// algorithm only picks up the keys it recognizes and silently ignores the
// rest.
func New(data mat.Matrix, overlay params.Params, optFns ...Option) *Facade {
	return &Facade{
		data:    data,
		overlay: overlay,
		opts:    applyOptions(optFns),
	}
}

// Data returns the dataset.
func (f *Facade) Data() mat.Matrix { return f.data }

// Overlay returns the option overlay.
func (f *Facade) Overlay() params.Params { return f.overlay }

// K returns the requested cluster count.
func (f *Facade) K() int { return f.opts.k }

// Available maps every invocable algorithm name to a description.
// Descriptions are currently empty.
func (f *Facade) Available() map[string]string {
	out := make(map[string]string, len(registry))
	for name := range registry {
		out[name] = ""
	}
	return out
}

// Algorithms returns the invocable algorithm names in sorted order.
func (f *Facade) Algorithms() []string {
	return Algorithms()
}

// KMeans runs k-means clustering.
func (f *Facade) KMeans(ctx context.Context) (*Result, error) {
	return f.run(ctx, AlgorithmKMeans)
}

// Spectral runs spectral clustering.
func (f *Facade) Spectral(ctx context.Context) (*Result, error) {
	return f.run(ctx, AlgorithmSpectral)
}

// Agglomerative runs agglomerative (hierarchical) clustering.
func (f *Facade) Agglomerative(ctx context.Context) (*Result, error) {
	return f.run(ctx, AlgorithmAgglomerative)
}

// DBSCAN runs density-based clustering. The result may contain
// cluster.Noise labels.
func (f *Facade) DBSCAN(ctx context.Context) (*Result, error) {
	return f.run(ctx, AlgorithmDBSCAN)
}

// Run runs the named algorithm. Unknown names yield an
// *UnknownAlgorithmError.
func (f *Facade) Run(ctx context.Context, name string) (*Result, error) {
	if _, ok := registry[name]; !ok {
		return nil, &UnknownAlgorithmError{Name: name}
	}
	return f.run(ctx, name)
}

// RunAll runs the named algorithms concurrently (all registered algorithms
// when names is empty) and returns their results keyed by name. The first
// failure cancels the remaining runs and is returned.
func (f *Facade) RunAll(ctx context.Context, names ...string) (map[string]*Result, error) {
	if len(names) == 0 {
		names = Algorithms()
	}
	for _, name := range names {
		if _, ok := registry[name]; !ok {
			return nil, &UnknownAlgorithmError{Name: name}
		}
	}

	results := make([]*Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			res, err := f.run(gctx, name)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*Result, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out, nil
}

func (f *Facade) routine(name string) cluster.Routine {
	if r, ok := f.opts.routines[name]; ok && r != nil {
		return r
	}
	return registry[name](&f.opts)
}

func (f *Facade) run(ctx context.Context, name string) (*Result, error) {
	defaults, _ := Defaults(name)
	merged := params.Merge(defaults, f.overlay)

	items := 0
	if f.data != nil {
		items, _ = f.data.Dims()
	}

	logger := f.opts.logger.WithAlgorithm(name).WithK(f.opts.k)
	logger.DebugContext(ctx, "run started", "items", items)

	start := time.Now()
	labels, err := f.routine(name).Fit(ctx, f.data, f.opts.k, merged)
	elapsed := time.Since(start)

	if err != nil {
		logger.LogRun(ctx, items, 0, 0, elapsed, err)
		f.opts.metricsCollector.RecordRun(name, items, 0, elapsed, err)
		return nil, err
	}

	res := newResult(name, f.opts.k, labels, merged, elapsed)
	logger.LogRun(ctx, res.Items, res.Clusters, res.Noise, elapsed, nil)
	f.opts.metricsCollector.RecordRun(name, res.Items, res.Noise, elapsed, nil)
	return res, nil
}
