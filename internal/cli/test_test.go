package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fgdb/internal/testutil"
)

const passingScenario = `name: doubled
description: result = double(seed) yields 30.
blocks:
  - function: ../blocks/double
  - data: ../blocks/seed
flow:
  - run: result = double(seed)
    expect:
      files: {value: "30"}
assertions:
  - type: stats
    expect: {og_edges: 1}
`

const failingScenario = `name: wrong
description: A wrong expectation fails.
blocks:
  - function: ../blocks/double
  - data: ../blocks/seed
flow:
  - run: result = double(seed)
assertions:
  - type: value
    block: result
    files: {value: "31"}
`

// scenarioDir lays out blocks/ and scenarios/ under a temp dir.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	blocks := filepath.Join(dir, "blocks")
	testutil.WriteFunction(t, blocks, "double", testutil.DoubleScript)
	testutil.WriteValue(t, blocks, "seed", "15")

	scen := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scen, 0o755))
	for name, body := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(scen, name), []byte(body), 0o644))
	}
	return scen
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ double-seed")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"doubled.yaml": passingScenario})
	golden := filepath.Join(dir, "golden", "doubled.golden")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ doubled (golden updated)")
	require.FileExists(t, golden)

	out, err = execute(t, "test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_Failures(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"doubled.yaml": passingScenario,
		"wrong.yaml":   failingScenario,
		"broken.yml":   "name: [\n",
	})

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "✗ broken.yml")
	assert.Contains(t, out, "failed to load scenario")
	assert.Contains(t, out, "Test Summary: 1 passed, 2 failed, 3 total")
}

func TestTestCommand_JSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"doubled.yaml": passingScenario,
		"wrong.yaml":   failingScenario,
	})

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["passed"])
	assert.Equal(t, float64(1), data["failed"])
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"doubled.yaml": passingScenario,
		"wrong.yaml":   failingScenario,
	})

	out, err := execute(t, "test", dir, "--filter", "doub*")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 total")

	out, err = execute(t, "test", dir, "--filter", "zzz*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, err = execute(t, "test", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
