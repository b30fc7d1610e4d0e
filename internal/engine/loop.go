package engine

import (
	"context"

	"github.com/vk/evalgraph/internal/ctxlog"
)

// Start runs batches in the background until ctx ends. A batch runs
// whenever the registry is mutated; a mutation during a batch cancels it
// and a fresh batch covers both changes. Calling Start twice has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.loopOnce.Do(func() {
		e.signal()
		go e.loop(ctx)
	})
}

func (e *Engine) onMutation() {
	e.signal()
	e.cancelMu.Lock()
	if e.cancelBatch != nil {
		e.cancelBatch()
	}
	e.cancelMu.Unlock()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Evaluation loop started.")
	defer logger.Debug("Evaluation loop stopped.")

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		}

		for ctx.Err() == nil {
			batchCtx, cancel := context.WithCancel(ctx)
			e.setCancel(cancel)
			res, err := e.RunBatch(batchCtx)
			e.setCancel(nil)
			cancel()

			if err == nil {
				if !res.Noop {
					e.deliver(res)
				}
				break
			}
			if IsSuperseded(err) {
				logger.Debug("Batch superseded, restarting.", "error", err)
				continue
			}
			logger.Error("Batch failed.", "error", err)
			break
		}
	}
}

func (e *Engine) setCancel(cancel context.CancelFunc) {
	e.cancelMu.Lock()
	e.cancelBatch = cancel
	e.cancelMu.Unlock()
}

func (e *Engine) deliver(res *BatchResult) {
	e.cancelMu.Lock()
	fns := append([]func(*BatchResult){}, e.onBatch...)
	e.cancelMu.Unlock()
	for _, fn := range fns {
		fn(res)
	}
}
