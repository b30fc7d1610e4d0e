package app

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vk/evalgraph/internal/notify"
)

// Report is the document written at the end of Run.
type Report struct {
	Revision uint64                    `json:"revision" yaml:"revision"`
	Values   map[string]any            `json:"values" yaml:"values"`
	Statuses map[string]PropertyStatus `json:"statuses" yaml:"statuses"`
	Actions  []ActionRequest           `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// ActionRequest is an action requested by a fired trigger.
type ActionRequest struct {
	ID      string `json:"id" yaml:"id"`
	Path    string `json:"path" yaml:"path"`
	Payload any    `json:"payload" yaml:"payload"`
}

// PropertyStatus is the evaluation outcome of one property.
type PropertyStatus struct {
	Status  string `json:"status" yaml:"status"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

func (a *App) buildReport(actions []*notify.Action) *Report {
	snap := a.engine.Registry().Snapshot()
	r := &Report{
		Revision: snap.Revision,
		Values:   map[string]any{},
		Statuses: make(map[string]PropertyStatus),
	}
	if tree, ok := snap.Tree().ToGo().(map[string]any); ok {
		r.Values = tree
	}
	for _, path := range snap.Paths() {
		p, _ := snap.Property(path)
		if p.Spec.Trigger {
			continue
		}
		r.Statuses[path] = PropertyStatus{Status: p.Status.String(), Message: p.Message}
	}
	for _, act := range actions {
		r.Actions = append(r.Actions, ActionRequest{ID: act.ID, Path: act.Path, Payload: act.Payload.ToGo()})
	}
	return r
}

func (a *App) writeReport(r *Report) error {
	switch a.config.OutputFormat {
	case "yaml":
		enc := yaml.NewEncoder(a.outW)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(a.outW)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}
}
