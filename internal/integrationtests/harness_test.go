package integration_tests

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/evalgraph/internal/app"
	"github.com/vk/evalgraph/internal/config"
	"github.com/vk/evalgraph/internal/hcl_adapter"
	"github.com/vk/evalgraph/internal/testutil"
	"github.com/vk/evalgraph/internal/yaml_adapter"
)

// harnessResult holds the outcomes of one page run.
type harnessResult struct {
	Report    *app.Report
	LogOutput string
	Err       error
}

// value returns the reported value at entity.property.
func (r *harnessResult) value(t *testing.T, entity, prop string) any {
	t.Helper()
	fields, ok := r.Report.Values[entity].(map[string]any)
	require.True(t, ok, "entity %s missing from report", entity)
	return fields[prop]
}

// runPage writes files to a temp directory, runs the app over it with the
// given --set mutations and decodes the JSON report.
func runPage(t *testing.T, files map[string]string, set ...string) *harnessResult {
	t.Helper()
	dir := testutil.WriteFiles(t, files)

	cfg, err := app.NewConfig(app.Config{
		PagePath: dir,
		LogLevel: "debug",
		Workers:  4,
		Set:      set,
	})
	require.NoError(t, err)

	out := &testutil.SafeBuffer{}
	logs := testutil.NewLogBuffer(t)
	loader := config.NewMultiLoader(hcl_adapter.NewLoader(), yaml_adapter.NewLoader())

	a, err := app.NewApp(out, cfg, loader, app.WithLogWriter(logs))
	if err != nil {
		return &harnessResult{LogOutput: logs.String(), Err: err}
	}
	if err := a.Run(context.Background()); err != nil {
		return &harnessResult{LogOutput: logs.String(), Err: err}
	}

	var report app.Report
	require.NoError(t, json.Unmarshal([]byte(out.String()), &report))
	return &harnessResult{Report: &report, LogOutput: logs.String()}
}
