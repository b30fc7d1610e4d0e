package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/metrics"
	"github.com/vk/evalgraph/internal/nodeid"
	"github.com/vk/evalgraph/internal/notify"
	"github.com/vk/evalgraph/internal/registry"
	"github.com/vk/evalgraph/internal/sandbox"
	"github.com/vk/evalgraph/internal/validate"
	"github.com/vk/evalgraph/internal/value"
)

// BatchResult reports one evaluation batch.
type BatchResult struct {
	ID       string
	Revision uint64
	Affected []string
	Order    []string
	Levels   [][]string
	Cycles   [][]string
	Results  []registry.Result
	// Changed lists the paths whose committed value differs from before
	// the batch, sorted.
	Changed  []string
	Duration time.Duration
	// Noop is set when nothing was dirty.
	Noop bool
}

// Result returns the outcome recorded for path in this batch.
func (b *BatchResult) Result(path string) (registry.Result, bool) {
	for _, r := range b.Results {
		if r.Path == path {
			return r, true
		}
	}
	return registry.Result{}, false
}

// RunBatch evaluates everything affected by the dirty set and commits the
// results. It returns an error wrapping registry.ErrSuperseded when the
// registry changed during the batch, or the context error when ctx ended;
// in both cases nothing is committed and the dirty set is kept.
func (e *Engine) RunBatch(ctx context.Context) (*BatchResult, error) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()

	start := time.Now()

	e.mu.Lock()
	snap := e.reg.Snapshot()
	plan := e.graph.Schedule(snap.Dirty)
	graphNodes := e.graph.Len()
	e.mu.Unlock()

	if len(snap.Dirty) == 0 {
		if len(snap.Removed) > 0 {
			_ = e.reg.Commit(snap.Revision, nil)
		}
		e.metrics.ObserveBatch(metrics.OutcomeNoop, time.Since(start))
		return &BatchResult{Revision: snap.Revision, Noop: true}, nil
	}

	id := uuid.NewString()
	logger := ctxlog.FromContext(ctx).With("batch", id)
	logger.Debug("Batch started.", "revision", snap.Revision, "dirty", len(snap.Dirty), "affected", len(plan.Affected), "levels", len(plan.Levels))

	view := newBatchView(snap, e.clock())
	res := &BatchResult{
		ID:       id,
		Revision: snap.Revision,
		Affected: plan.Affected,
		Order:    plan.Order,
		Levels:   plan.Levels,
		Cycles:   plan.Cycles,
	}

	cycleNodes := 0
	for _, cycle := range plan.Cycles {
		msg := "cyclic dependency: " + strings.Join(cycle, " -> ")
		for _, path := range cycle {
			r := view.errored(path, registry.StatusCycleError, msg)
			view.record(r)
			res.Results = append(res.Results, r)
		}
		cycleNodes += len(cycle)
		logger.Warn("Dependency cycle detected.", "members", cycle)
	}

	for i, level := range plan.Levels {
		out, err := e.evaluateLevel(ctx, view, level)
		if err != nil {
			e.metrics.ObserveBatch(metrics.OutcomeSuperseded, time.Since(start))
			logger.Debug("Batch abandoned.", "level", i, "error", err)
			return nil, fmt.Errorf("batch %s abandoned at level %d: %w", id, i, err)
		}
		for _, r := range out {
			view.record(r)
		}
		res.Results = append(res.Results, out...)
	}

	if err := e.reg.Commit(snap.Revision, res.Results); err != nil {
		e.metrics.ObserveBatch(metrics.OutcomeSuperseded, time.Since(start))
		logger.Debug("Batch superseded.", "error", err)
		return nil, fmt.Errorf("batch %s: %w", id, err)
	}

	res.Changed = view.changed(res.Results)
	res.Duration = time.Since(start)

	e.metrics.ObserveBatch(metrics.OutcomeCommitted, res.Duration)
	for _, r := range res.Results {
		e.metrics.ObserveNode(r.Status.String())
	}
	e.metrics.SetGraph(graphNodes, cycleNodes)

	if e.publisher != nil && len(res.Changed) > 0 {
		change := notify.Change{
			BatchID:  id,
			Revision: snap.Revision,
			Changed:  res.Changed,
			Statuses: make(map[string]string, len(res.Changed)),
		}
		for _, path := range res.Changed {
			if r, ok := res.Result(path); ok {
				change.Statuses[path] = r.Status.String()
			}
		}
		if err := e.publisher.Publish(change); err != nil {
			logger.Error("Failed to publish changes.", "error", err)
		}
	}

	logger.Debug("Batch committed.", "evaluated", len(res.Results), "changed", len(res.Changed), "duration", res.Duration)
	return res, nil
}

func (e *Engine) evaluateLevel(ctx context.Context, view *batchView, level []string) ([]registry.Result, error) {
	out := make([]registry.Result, len(level))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.pool.Size())
	for i, path := range level {
		g.Go(func() error {
			r, err := e.evaluateNode(gctx, view, path)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) evaluateNode(ctx context.Context, view *batchView, path string) (registry.Result, error) {
	p, ok := view.snap.Property(path)
	if !ok {
		return registry.Result{Path: path, Value: value.Undefined(), Status: registry.StatusEvalError, Message: "property does not exist"}, nil
	}

	task := sandbox.Task{
		Path:    path,
		Raw:     p.Spec.Raw,
		Formula: p.Spec.Formula,
		Scope:   sandbox.Scope{Resolver: view, Self: p.Entity},
	}
	out := <-e.pool.Submit(ctx, task)
	if out.Err != nil {
		if out.Err.Kind == sandbox.Canceled {
			if err := ctx.Err(); err != nil {
				return registry.Result{}, fmt.Errorf("evaluating %s: %w", path, err)
			}
			return registry.Result{}, fmt.Errorf("evaluating %s: %w", path, out.Err)
		}
		return view.errored(path, registry.StatusEvalError, out.Err.Error()), nil
	}

	checked := validate.Validate(out.Value, p.Spec.Type, view.now)
	status := registry.StatusValid
	if !checked.Valid {
		status = registry.StatusValidationError
	}
	return registry.Result{Path: path, Value: checked.Value, Status: status, Message: checked.Message}, nil
}

// IsSuperseded reports whether err came from a batch abandoned because the
// registry changed or its context was canceled.
func IsSuperseded(err error) bool {
	return errors.Is(err, registry.ErrSuperseded) || errors.Is(err, context.Canceled)
}

// batchView resolves entity names for the sandbox against the batch's
// snapshot overlaid with the results recorded so far.
type batchView struct {
	snap *registry.Snapshot
	now  time.Time

	mu      sync.Mutex
	results map[string]registry.Result
	cache   map[string]value.Value
}

func newBatchView(snap *registry.Snapshot, now time.Time) *batchView {
	return &batchView{
		snap:    snap,
		now:     now,
		results: make(map[string]registry.Result),
		cache:   make(map[string]value.Value),
	}
}

// EntityValue builds the object the sandbox sees for name.
func (v *batchView) EntityValue(name string) (value.Value, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if obj, ok := v.cache[name]; ok {
		return obj, true
	}
	ent, ok := v.snap.Entity(name)
	if !ok {
		return value.Undefined(), false
	}
	fields := make(map[string]value.Value, len(ent.Properties))
	for _, prop := range ent.Properties {
		fields[prop] = v.readLocked(nodeid.Join(name, prop))
	}
	obj := value.Object(fields)
	v.cache[name] = obj
	return obj, true
}

func (v *batchView) readLocked(path string) value.Value {
	if r, ok := v.results[path]; ok {
		return exposed(r.Status, r.Value)
	}
	p, ok := v.snap.Property(path)
	if !ok {
		return value.Undefined()
	}
	return exposed(p.Status, p.Value)
}

// exposed is what dependents read from a property. Failed evaluations read
// as undefined; a validation failure reads as its stored default.
func exposed(status registry.Status, val value.Value) value.Value {
	switch status {
	case registry.StatusEvalError, registry.StatusCycleError:
		return value.Undefined()
	}
	return val
}

func (v *batchView) record(r registry.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.results[r.Path] = r
	if name, _, ok := strings.Cut(r.Path, "."); ok {
		delete(v.cache, name)
	}
}

// errored builds a failed result keeping the last committed value, or the
// type default for a property never evaluated.
func (v *batchView) errored(path string, status registry.Status, msg string) registry.Result {
	r := registry.Result{Path: path, Status: status, Message: msg}
	p, ok := v.snap.Property(path)
	switch {
	case !ok:
		r.Value = value.Undefined()
	case p.Evaluated:
		r.Value = p.Value
	default:
		r.Value = validate.Default(p.Spec.Type, v.now)
	}
	return r
}

func (v *batchView) changed(results []registry.Result) []string {
	var out []string
	for _, r := range results {
		p, ok := v.snap.Property(r.Path)
		if !ok || !p.Evaluated || !p.Value.Equal(r.Value) || (p.Status.IsError() != r.Status.IsError()) {
			out = append(out, r.Path)
		}
	}
	sort.Strings(out)
	return out
}
