package app

import (
	"context"
	"fmt"

	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/engine"
	"github.com/vk/evalgraph/internal/notify"
)

// Run evaluates the page, applies the configured mutations, re-evaluates,
// fires the configured triggers and writes the report. The App is closed
// when Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	defer a.close()

	if _, err := a.startMetricsServer(); err != nil {
		return err
	}
	defer func() { _ = a.closeMetricsServer() }()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes, err := a.notifier.Subscribe(subCtx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to changes: %w", err)
	}
	go a.logChanges(subCtx, changes)
	actions, err := a.notifier.SubscribeActions(subCtx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to actions: %w", err)
	}
	go a.logActions(subCtx, actions)

	res, err := a.engine.RunBatch(ctx)
	if err != nil {
		return fmt.Errorf("initial evaluation failed: %w", err)
	}
	a.logBatch(res, "Initial evaluation complete.")

	mutations, err := a.config.Mutations()
	if err != nil {
		return err
	}
	if len(mutations) > 0 {
		for _, m := range mutations {
			if err := a.engine.SetRawValue(ctx, m.Entity, m.Property, m.Value); err != nil {
				return err
			}
			a.logger.Debug("Mutation applied.", "entity", m.Entity, "property", m.Property)
		}
		res, err = a.engine.RunBatch(ctx)
		if err != nil {
			return fmt.Errorf("incremental evaluation failed: %w", err)
		}
		a.logBatch(res, "Incremental evaluation complete.")
	}

	var requested []*notify.Action
	for _, path := range a.config.Trigger {
		action, err := a.engine.Trigger(ctx, path)
		if err != nil {
			return err
		}
		requested = append(requested, action)
	}

	if err := a.writeReport(a.buildReport(requested)); err != nil {
		return err
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) logBatch(res *engine.BatchResult, msg string) {
	if res.Noop {
		a.logger.Info(msg, "evaluated", 0)
		return
	}
	a.logger.Info(msg,
		"batch", res.ID,
		"evaluated", len(res.Results),
		"changed", len(res.Changed),
		"cycles", len(res.Cycles),
		"duration", res.Duration,
	)
	for _, cycle := range res.Cycles {
		a.logger.Warn("Properties in a dependency cycle.", "members", cycle)
	}
}

func (a *App) logChanges(ctx context.Context, changes <-chan notify.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			a.logger.Debug("Values changed.", "batch", c.BatchID, "revision", c.Revision, "paths", c.Changed)
		}
	}
}

func (a *App) logActions(ctx context.Context, actions <-chan notify.Action) {
	for {
		select {
		case <-ctx.Done():
			return
		case act, ok := <-actions:
			if !ok {
				return
			}
			a.logger.Info("Action requested.", "action", act.ID, "path", act.Path, "revision", act.Revision)
		}
	}
}
