package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/metrics"
	"github.com/vk/evalgraph/internal/notify"
	"github.com/vk/evalgraph/internal/registry"
	"github.com/vk/evalgraph/internal/sandbox"
	"github.com/vk/evalgraph/internal/validate"
)

// ErrNotTrigger is returned by Trigger for a property that is not a trigger.
var ErrNotTrigger = errors.New("property is not a trigger")

// Trigger evaluates the trigger property at path against the committed
// values and publishes the result as an action request. The engine does
// not perform the action; subscribers of notify.ActionTopic do.
func (e *Engine) Trigger(ctx context.Context, path string) (*notify.Action, error) {
	snap := e.reg.Snapshot()
	p, ok := snap.Property(path)
	if !ok {
		return nil, fmt.Errorf("failed to trigger %s: %w", path, registry.ErrNotFound)
	}
	if !p.Spec.Trigger {
		return nil, fmt.Errorf("failed to trigger %s: %w", path, ErrNotTrigger)
	}

	logger := ctxlog.FromContext(ctx).With("trigger", path)
	view := newBatchView(snap, e.clock())
	out := <-e.pool.Submit(ctx, sandbox.Task{
		Path:  path,
		Raw:   p.Spec.Raw,
		Scope: sandbox.Scope{Resolver: view, Self: p.Entity},
	})
	if out.Err != nil {
		e.metrics.ObserveAction(metrics.ActionFailed)
		logger.Warn("Trigger evaluation failed.", "error", out.Err)
		return nil, fmt.Errorf("failed to trigger %s: %w", path, out.Err)
	}
	checked := validate.Validate(out.Value, p.Spec.Type, view.now)
	if !checked.Valid {
		e.metrics.ObserveAction(metrics.ActionFailed)
		return nil, fmt.Errorf("failed to trigger %s: %s", path, checked.Message)
	}

	action := &notify.Action{
		ID:       uuid.NewString(),
		Path:     path,
		Revision: snap.Revision,
		Payload:  checked.Value,
	}
	if e.publisher != nil {
		if err := e.publisher.PublishAction(*action); err != nil {
			e.metrics.ObserveAction(metrics.ActionFailed)
			return nil, fmt.Errorf("failed to trigger %s: %w", path, err)
		}
	}
	e.metrics.ObserveAction(metrics.ActionPublished)
	logger.Debug("Action requested.", "action", action.ID, "revision", action.Revision)
	return action, nil
}
