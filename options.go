package ensemble

import (
	"log/slog"

	"github.com/hupe1980/ensemble/cluster"
	"github.com/hupe1980/ensemble/resource"
)

// DefaultK is the requested cluster count when WithK is not given.
const DefaultK = 2

type options struct {
	k                int
	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
	routines         map[string]cluster.Routine
}

// Option configures a Facade.
type Option func(*options)

// WithK sets the requested cluster count passed to every routine.
// It is stored as given; routines that need a cluster count validate it.
func WithK(k int) Option {
	return func(o *options) {
		o.k = k
	}
}

// WithMetricsCollector configures a metrics collector for clustering runs.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &ensemble.BasicMetricsCollector{}
//	f := ensemble.New(data, nil, ensemble.WithMetricsCollector(metrics))
//	// ... run algorithms ...
//	stats := metrics.GetStats()
//	fmt.Printf("Runs: %d, Avg latency: %dns\n", stats.RunCount, stats.RunAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for clustering runs.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := ensemble.NewJSONLogger(slog.LevelDebug)
//	f := ensemble.New(data, nil, ensemble.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController shares a resource controller with the routines.
// It bounds concurrent k-means restarts and the memory of the n*n matrices
// built by spectral and agglomerative clustering.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithRoutine replaces the routine behind a registered algorithm name.
// The name keeps its defaults and option handling; only the numerical work
// is swapped. Names that are not registered are ignored by Run.
func WithRoutine(name string, r cluster.Routine) Option {
	return func(o *options) {
		if o.routines == nil {
			o.routines = make(map[string]cluster.Routine)
		}
		o.routines[name] = r
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		k:                DefaultK,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
