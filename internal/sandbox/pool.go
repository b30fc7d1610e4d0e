package sandbox

import (
	"context"
	"sync"

	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/value"
)

// Task is one property evaluation submitted to a Pool. A task with a
// Formula evaluates it as a single expression; otherwise Raw is evaluated
// with EvaluateRaw.
type Task struct {
	Path    string
	Raw     value.Value
	Formula string
	Scope   Scope
}

// Result is the outcome of a Task.
type Result struct {
	Path  string
	Value value.Value
	Err   *EvalError
}

type job struct {
	ctx  context.Context
	task Task
	out  chan Result
}

// Pool is a bounded set of workers, each owning a private Evaluator.
type Pool struct {
	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	size int
}

// NewPool starts size workers. newEvaluator is called once per worker.
func NewPool(ctx context.Context, size int, newEvaluator func() *Evaluator) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		jobs: make(chan job),
		quit: make(chan struct{}),
		size: size,
	}
	for i := range size {
		p.wg.Add(1)
		go p.worker(ctx, newEvaluator(), i)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

func (p *Pool) worker(ctx context.Context, ev *Evaluator, workerID int) {
	defer p.wg.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Evaluation worker started.", "workerID", workerID)

	for {
		select {
		case <-p.quit:
			logger.Debug("Evaluation worker finished.", "workerID", workerID)
			return
		case j := <-p.jobs:
			if err := j.ctx.Err(); err != nil {
				j.out <- Result{Path: j.task.Path, Err: &EvalError{Kind: Canceled, Message: err.Error()}}
				continue
			}
			j.out <- ev.RunTask(j.ctx, j.task)
		}
	}
}

// RunTask evaluates task on the calling goroutine.
func (e *Evaluator) RunTask(ctx context.Context, task Task) Result {
	var (
		v   value.Value
		err *EvalError
	)
	if task.Formula != "" {
		v, err = e.Evaluate(ctx, task.Formula, task.Scope)
	} else {
		v, err = e.EvaluateRaw(ctx, task.Raw, task.Scope)
	}
	return Result{Path: task.Path, Value: v, Err: err}
}

// Submit queues task and returns a channel that receives exactly one
// Result. Callers that lose interest simply stop reading; the channel is
// buffered so the worker never blocks on it.
func (p *Pool) Submit(ctx context.Context, task Task) <-chan Result {
	out := make(chan Result, 1)
	select {
	case p.jobs <- job{ctx: ctx, task: task, out: out}:
	case <-ctx.Done():
		out <- Result{Path: task.Path, Err: &EvalError{Kind: Canceled, Message: ctx.Err().Error()}}
	case <-p.quit:
		out <- Result{Path: task.Path, Err: &EvalError{Kind: Canceled, Message: "evaluation pool closed"}}
	}
	return out
}

// Close stops the workers and waits for them to exit. It is safe to call
// more than once.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}
