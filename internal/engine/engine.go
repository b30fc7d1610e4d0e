package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/evalgraph/internal/binding"
	"github.com/vk/evalgraph/internal/graph"
	"github.com/vk/evalgraph/internal/metrics"
	"github.com/vk/evalgraph/internal/notify"
	"github.com/vk/evalgraph/internal/registry"
	"github.com/vk/evalgraph/internal/sandbox"
	"github.com/vk/evalgraph/internal/value"
)

// Config holds the engine's tunables and collaborators. The zero value is
// usable.
type Config struct {
	// Workers is the size of the evaluation pool. Defaults to 4.
	Workers int
	// EvalTimeout bounds a single segment evaluation.
	EvalTimeout time.Duration
	// CacheSize bounds the parsed expression cache.
	CacheSize int
	// Functions extends the sandbox allow-list.
	Functions map[string]function.Function
	// Clock supplies the evaluation time used by date defaults.
	Clock func() time.Time
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Publisher receives a Change per committed batch. May be nil.
	Publisher notify.Publisher
}

// DefaultWorkers is the pool size used when Config.Workers is unset.
const DefaultWorkers = 4

// Engine owns the registry, the dependency graph and the evaluator pool of
// one page.
type Engine struct {
	reg       *registry.Registry
	graph     *graph.Graph
	extractor *binding.Extractor
	pool      *sandbox.Pool
	metrics   *metrics.Metrics
	publisher notify.Publisher
	clock     func() time.Time

	// mu serializes mutations so registry and graph change together.
	mu sync.Mutex
	// bindings holds the last extraction per property path.
	bindings map[string][]binding.Binding
	// waiting maps a root name that is not an entity yet to the sources
	// mentioning it; waitingRoots is the reverse index.
	waiting      map[string]map[string]struct{}
	waitingRoots map[string][]string

	// batchMu allows one batch at a time.
	batchMu sync.Mutex

	wake        chan struct{}
	cancelMu    sync.Mutex
	cancelBatch context.CancelFunc
	loopOnce    sync.Once
	onBatch     []func(*BatchResult)
}

// New creates an Engine and starts its evaluator pool. Close releases it.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	parser, err := binding.NewParser(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	opts := []sandbox.Option{sandbox.WithTimeout(cfg.EvalTimeout)}
	if len(cfg.Functions) > 0 {
		opts = append(opts, sandbox.WithFunctions(cfg.Functions))
	}

	e := &Engine{
		reg:          registry.New(),
		graph:        graph.New(),
		extractor:    binding.NewExtractor(parser),
		metrics:      cfg.Metrics,
		publisher:    cfg.Publisher,
		clock:        clock,
		bindings:     make(map[string][]binding.Binding),
		waiting:      make(map[string]map[string]struct{}),
		waitingRoots: make(map[string][]string),
		wake:         make(chan struct{}, 1),
	}
	e.pool = sandbox.NewPool(ctx, workers, func() *sandbox.Evaluator {
		return sandbox.New(parser, opts...)
	})
	e.reg.OnMutation(e.onMutation)
	return e, nil
}

// Close stops the evaluator pool. Batches started afterwards fail.
func (e *Engine) Close() {
	e.pool.Close()
}

// Registry exposes the underlying registry for reads.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Graph exposes the dependency graph for reads.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Value returns the last committed value at path.
func (e *Engine) Value(path string) value.Value { return e.reg.Value(path) }

// Status returns the status and message of the property at path.
func (e *Engine) Status(path string) (registry.Status, string, error) {
	return e.reg.Status(path)
}

// Values returns the committed value tree as a flat map of paths.
func (e *Engine) Values() map[string]value.Value {
	return e.reg.Snapshot().Values()
}

// Bindings returns the bindings extracted for the property at path.
func (e *Engine) Bindings(path string) []binding.Binding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]binding.Binding(nil), e.bindings[path]...)
}

// OnBatch registers fn to receive every committed batch run by Start.
func (e *Engine) OnBatch(fn func(*BatchResult)) {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	e.onBatch = append(e.onBatch, fn)
}
