package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{
		"--log-level", "debug",
		"--workers", "8",
		"--eval-timeout", "1s",
		"-o", "yaml",
		"--set", "Input1.text=hi",
		"--set", "Input1.count=3",
		"--trigger", "Button1.onClick",
		"page.hcl",
	}, out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "page.hcl", cfg.PagePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, time.Second, cfg.EvalTimeout)
	assert.Equal(t, "yaml", cfg.OutputFormat)
	assert.Equal(t, []string{"Input1.text=hi", "Input1.count=3"}, cfg.Set)
	assert.Equal(t, []string{"Button1.onClick"}, cfg.Trigger)
}

func TestParse_PageFlag(t *testing.T) {
	cfg, exit, err := Parse([]string{"-p", "dir"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "dir", cfg.PagePath)
	assert.Equal(t, "json", cfg.OutputFormat)
}

func TestParse_Help(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_NoPath(t *testing.T) {
	out := &bytes.Buffer{}
	_, exit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_Errors(t *testing.T) {
	tests := map[string][]string{
		"unknown flag": {"--this-is-not-a-valid-flag"},
		"log format":   {"--log-format", "xml", "p"},
		"bad mutation": {"--set", "nonsense", "p"},
		"two paths":    {"a", "b"},
		"missing file": {"--config", "/does/not/exist.yaml", "p"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(args, &bytes.Buffer{})
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestParse_EnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "evalgraph.yaml")
	require.NoError(t, os.WriteFile(file, []byte("workers: 3\noutput: yaml\n"), 0o644))
	t.Setenv("EVALGRAPH_LOG_LEVEL", "warn")

	cfg, _, err := Parse([]string{"--config", file, "p"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "yaml", cfg.OutputFormat)
	assert.Equal(t, "warn", cfg.LogLevel)

	cfg, _, err = Parse([]string{"--config", file, "--workers", "5", "p"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers, "flags win over the config file")
}
