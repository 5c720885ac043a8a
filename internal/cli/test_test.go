package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../harness/testdata/scenarios"

func TestTestCommand_AllScenarios(t *testing.T) {
	out, err := execute(t, "test", scenarioDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ counter_steps")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", scenarioDir, "--filter", "counter_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_EmptyDirectory(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join(scenarioDir, "counter_steps.yaml"))
	require.NoError(t, err)
	writeFile(t, dir, "counter_steps.yaml", string(src))

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")
	assert.FileExists(t, filepath.Join(dir, "golden", "counter_steps.golden"))

	_, err = execute(t, "test", dir)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "golden"), "counter_steps.golden", `{"scenario_name":"counter_steps","trace":[]}`)
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", `
name: wrong
description: expects the wrong count
app: counter
flow:
  - press: "+1"
assertions:
  - type: state_equals
    hook: "Counter#0/state#0"
    value: 9
`)

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E_TEST_FAILED")
}
