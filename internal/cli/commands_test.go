package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fgdb/internal/engine"
	"github.com/roach88/fgdb/internal/testutil"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// cliStore is an initialized store with the double function and a seed
// holding 15.
type cliStore struct {
	dir   string
	src   string
	store string
}

func newCLIStore(t *testing.T) *cliStore {
	t.Helper()
	s := &cliStore{dir: t.TempDir(), src: t.TempDir()}
	s.store = filepath.Join(s.dir, ".fgdb")

	_, err := execute(t, "--store", s.store, "init")
	require.NoError(t, err)

	fn := testutil.WriteFunction(t, s.src, "double", testutil.DoubleScript)
	seed := testutil.WriteValue(t, s.src, "seed", "15")
	s.run(t, "add", "-f", fn)
	s.run(t, "add", "-d", seed)
	return s
}

func (s *cliStore) run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, append([]string{"--store", s.store}, args...)...)
	require.NoError(t, err)
	return out
}

func (s *cliStore) fail(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, err := execute(t, append([]string{"--store", s.store}, args...)...)
	require.Error(t, err)
	return out, err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestInit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	out, err := execute(t, "--store", dir, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized empty FGDB store in "+dir)
	assert.Contains(t, out, "MG root:")

	_, err = execute(t, "--store", dir, "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "ALREADY_INITIALIZED")
}

func TestInit_ForceDiscardsBlocks(t *testing.T) {
	s := newCLIStore(t)
	require.DirExists(t, filepath.Join(s.store, "blocks"))

	out := s.run(t, "--format", "json", "init", "--force")
	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, true, resp.Data.(map[string]any)["reset"])
	assert.NoDirExists(t, filepath.Join(s.store, "blocks"))

	out = s.run(t, "show")
	assert.Contains(t, out, "MG: 1 nodes, 0 edges")
}

func TestCommands_EndToEnd(t *testing.T) {
	s := newCLIStore(t)

	out := s.run(t, "run", "-e", "result = double(seed)")
	assert.Contains(t, out, "result = double(seed) -> result (")

	assert.Equal(t, "30\n", s.run(t, "cat", "result"))

	out = s.run(t, "show")
	assert.Contains(t, out, "MG: 4 nodes, 3 edges")
	assert.Contains(t, out, "OG: 3 nodes, 1 edges")
	assert.Contains(t, out, "Blocks: 1 functions, 2 data (1 produced)")

	out = s.run(t, "trace", "result")
	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, "= double#")
	assert.Contains(t, out, "=== Sources ===")
	assert.Contains(t, out, "  seed#")

	out = s.run(t, "show", "result")
	assert.Contains(t, out, "Kind:")
	assert.Contains(t, out, "Produced by:")
	assert.Contains(t, out, "MG,OG")

	out = s.run(t, "show", "--nodes", "--executions")
	assert.Contains(t, out, "=== Nodes ===")
	assert.Contains(t, out, "MG_ROOT")
	assert.Contains(t, out, "=== Executions ===")
}

func TestCommands_DefaultStoreInWorkingDir(t *testing.T) {
	work := t.TempDir()
	src := t.TempDir()
	fn := testutil.WriteFunction(t, src, "double", testutil.DoubleScript)
	seed := testutil.WriteValue(t, src, "seed", "15")
	t.Chdir(work)

	out, err := execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized empty FGDB store in "+filepath.Join(work, DefaultStoreDir))

	for _, args := range [][]string{{"add", "-f", fn}, {"add", "-d", seed}, {"run", "-e", "result = double(seed)"}} {
		_, err := execute(t, args...)
		require.NoError(t, err, args)
	}

	out, err = execute(t, "cat", "result")
	require.NoError(t, err)
	assert.Equal(t, "30\n", out)
}

func TestAdd_Idempotent(t *testing.T) {
	s := newCLIStore(t)

	out := s.run(t, "add", "-d", filepath.Join(s.src, "seed"))
	assert.Contains(t, out, "Already registered: data seed")

	out = s.run(t, "--format", "json", "add", "-d", filepath.Join(s.src, "seed"), "--name", "other")
	resp := decodeResponse(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["created"])
	assert.Equal(t, "seed", data["name"], "an existing block keeps its name")
}

func TestAdd_Errors(t *testing.T) {
	s := newCLIStore(t)

	_, err := s.fail(t, "add")
	assert.Contains(t, err.Error(), "function")

	_, err = s.fail(t, "add", "-f", filepath.Join(s.src, "double"), "-d", filepath.Join(s.src, "seed"))
	assert.Contains(t, err.Error(), "none of the others can be")

	_, err = s.fail(t, "add", "-d", filepath.Join(s.src, "missing"))
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "BLOCK_SOURCE_MISSING")
}

func TestRun_BatchFile(t *testing.T) {
	s := newCLIStore(t)
	ops := filepath.Join(s.src, "ops.txt")
	require.NoError(t, os.WriteFile(ops, []byte("# chain\nresult = double(seed)\n\nquad = double(result)\n"), 0o644))

	out := s.run(t, "--format", "json", "run", "-i", ops)
	resp := decodeResponse(t, out)
	require.Equal(t, "ok", resp.Status)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result RunResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Executions, 2)
	assert.Equal(t, 2, result.Executions[0].Line)
	assert.Equal(t, 4, result.Executions[1].Line)
	assert.Equal(t, "quad", result.Executions[1].Name)

	assert.Equal(t, "60\n", s.run(t, "cat", "quad"))
}

func TestRun_BatchStopsAtFirstFailure(t *testing.T) {
	s := newCLIStore(t)
	ops := filepath.Join(s.src, "ops.txt")
	require.NoError(t, os.WriteFile(ops, []byte("result = double(seed)\nbad = double(nothing)\nquad = double(result)\n"), 0o644))

	out, err := s.fail(t, "--format", "json", "run", "-i", ops)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_BLOCK", resp.Error.Code)
	details := resp.Error.Details.(map[string]any)
	assert.Equal(t, float64(1), details["committed"])
	assert.Equal(t, "nothing", details["ref"])

	out = s.run(t, "show")
	assert.Contains(t, out, "OG: 3 nodes, 1 edges", "the first line stays committed")
}

func TestRun_MalformedBatchRunsNothing(t *testing.T) {
	s := newCLIStore(t)
	ops := filepath.Join(s.src, "ops.txt")
	require.NoError(t, os.WriteFile(ops, []byte("result = double(seed)\nbroken(\n"), 0o644))

	_, err := s.fail(t, "run", "-i", ops)
	assert.Contains(t, err.Error(), "MALFORMED_EXPRESSION")
	assert.Contains(t, err.Error(), "line 2")

	assert.Contains(t, s.run(t, "show"), "OG: 2 nodes, 0 edges")
}

func TestRun_Stdin(t *testing.T) {
	s := newCLIStore(t)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString("result = double(seed)\n"))
	cmd.SetArgs([]string{"--store", s.store, "run", "-i", "-"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "-> result")
}

func TestRun_TimeoutFlag(t *testing.T) {
	s := newCLIStore(t)
	s.run(t, "add", "-f", testutil.WriteFunction(t, s.src, "slow", testutil.SleepScript))

	out, err := s.fail(t, "--format", "json", "run", "-e", "late = slow(seed)", "--timeout", "200ms")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, out)
	assert.Equal(t, "EXECUTION_FAILED", resp.Error.Code)
	assert.Equal(t, "true", resp.Error.Details.(map[string]any)["timed_out"])
}

func TestRun_FixedRunIDs(t *testing.T) {
	s := newCLIStore(t)

	root := &RootOptions{Format: "json", Store: s.store}
	cmd := NewRunCommand(root)
	opts := &RunOptions{RootOptions: root, Expr: "result = double(seed)", RunIDs: engine.NewFixedGenerator("run-1")}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, runOperations(opts, cmd))
	resp := decodeResponse(t, out.String())
	execs := resp.Data.(map[string]any)["executions"].([]any)
	assert.Equal(t, "run-1", execs[0].(map[string]any)["run_id"])
}

func TestResolution_Errors(t *testing.T) {
	s := newCLIStore(t)
	s.run(t, "add", "-d", testutil.WriteValue(t, s.dir, "seed", "16"))

	out, err := s.fail(t, "--format", "json", "cat", "seed")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, out)
	assert.Equal(t, "AMBIGUOUS_NAME", resp.Error.Code)
	assert.Len(t, resp.Error.Details.(map[string]any)["candidates"], 2)

	_, err = s.fail(t, "cat", "double")
	assert.Contains(t, err.Error(), "TYPE_MISMATCH")

	_, err = s.fail(t, "trace", "nothing")
	assert.Contains(t, err.Error(), "UNKNOWN_BLOCK")
}

func TestShow_BlockJSON(t *testing.T) {
	s := newCLIStore(t)
	s.run(t, "run", "-e", "result = double(seed)")

	resp := decodeResponse(t, s.run(t, "--format", "json", "show", "result"))
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var detail BlockDetail
	require.NoError(t, json.Unmarshal(raw, &detail))

	assert.Equal(t, "result", detail.Name)
	assert.True(t, detail.InMG)
	assert.True(t, detail.InOG)
	require.NotNil(t, detail.ProducedBy)
	assert.Contains(t, detail.ProducedBy.Expr, "result#")
	assert.Equal(t, []string{"value"}, detail.Files)
	assert.Empty(t, detail.Consumers)

	resp = decodeResponse(t, s.run(t, "--format", "json", "show", "seed"))
	seed := resp.Data.(map[string]any)
	assert.Len(t, seed["consumers"], 1)
}

func TestExport(t *testing.T) {
	s := newCLIStore(t)
	s.run(t, "run", "-e", "result = double(seed)")

	first := s.run(t, "export")
	second := s.run(t, "--format", "json", "export")
	assert.Equal(t, first, second, "export ignores --format and is deterministic")

	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &snap))
	assert.Len(t, snap["og_edges"], 1)

	path := filepath.Join(s.dir, "snapshot.json")
	s.run(t, "export", "-o", path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, string(data))
}

func TestCommands_StoreNotInitialized(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	for _, args := range [][]string{{"show"}, {"export"}, {"run", "-e", "a = b(c)"}, {"cat", "x"}} {
		_, err := execute(t, append([]string{"--store", dir}, args...)...)
		require.Error(t, err, args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), args)
		assert.Contains(t, err.Error(), "STORE_NOT_INITIALIZED", args)
	}
}

func TestConfig_ExplicitFileRequired(t *testing.T) {
	s := newCLIStore(t)

	_, err := s.fail(t, "--config", filepath.Join(s.dir, "nope.yaml"), "show")
	assert.Contains(t, err.Error(), "read config")
}

func TestConfig_EnvReachesFunction(t *testing.T) {
	s := newCLIStore(t)
	cfg := filepath.Join(s.store, "fgdb.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("env:\n  GREETING: hi\n"), 0o644))

	fn := testutil.WriteFunction(t, s.src, "greet", `echo "$GREETING" > "$2/value"`+"\n")
	s.run(t, "add", "-f", fn)
	s.run(t, "run", "-e", "msg = greet(seed)")
	assert.Equal(t, "hi\n", s.run(t, "cat", "msg"))
}

func TestRoot_InvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "yaml", "show")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRoot_UnknownFlag(t *testing.T) {
	_, err := execute(t, "show", "--bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
