package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../harness/testdata/scenarios"

const failingScenario = `
name: failing
description: "Expects a close to fail that succeeds"
sessions: [a]
flow:
  - session: a
    invoke: open
    args: { play_id: "1" }
  - session: a
    invoke: close
    expect:
      case: InvalidStatus
assertions:
  - type: trace_count
    action: close
    count: 1
`

func TestConform_MissingArgs(t *testing.T) {
	_, err := execute(t, "conform")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestConform_NonExistentDir(t *testing.T) {
	_, err := execute(t, "conform", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to find scenarios")
}

func TestConform_EmptyDir(t *testing.T) {
	out, err := execute(t, "conform", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestConform_AllPass(t *testing.T) {
	out, err := execute(t, "conform", scenarioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ tick_broadcast.yaml")
	assert.Contains(t, out, "Conformance Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "All scenarios passed")
}

func TestConform_Filter(t *testing.T) {
	out, err := execute(t, "--format", "json", "conform", scenarioDir, "--filter", "start_*")
	require.NoError(t, err)

	resp, data := decodeData(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.JSONEq(t, `{"total_scenarios": 1, "passed": 1, "failed": 0}`, data)
}

func TestConform_InvalidFilter(t *testing.T) {
	_, err := execute(t, "conform", scenarioDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConform_FailureText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yaml"), []byte(failingScenario), 0644))

	out, err := execute(t, "conform", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing.yaml")
	assert.Contains(t, out, "expected case InvalidStatus, got Success")
	assert.Contains(t, out, "1 failed")
}

func TestConform_FailureJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yaml"), []byte(failingScenario), 0644))

	out, err := execute(t, "--format", "json", "conform", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, _ := decodeData(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeConformance, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
}
