package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario errors: %v", result.Errors)
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/double-seed.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace, "same clock and run IDs give the same hash codes")
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/double-seed.yaml")
	require.NoError(t, err)

	scenario.Flow[0].Expect.Files = map[string]string{"value": "31"}
	scenario.Flow[1].Expect = &ExpectClause{Error: "EXECUTION_FAILED"}
	scenario.Assertions = []Assertion{
		{Type: AssertStats, Expect: map[string]int{"og_edges": 5}},
		{Type: AssertNameCount, Name: "seed", Count: 2},
		{Type: AssertLineage, Block: "result", Functions: []string{"triple"}},
		{Type: AssertTraceOrder, Exprs: []string{"quad = double(result)", "result = double(seed)"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "payload mismatch")
	assert.Contains(t, joined, "expected error EXECUTION_FAILED, got success")
	assert.Contains(t, joined, "assertions[0]: Assertion failed: stats")
	assert.Contains(t, joined, "assertions[1]: Assertion failed: name_count")
	assert.Contains(t, joined, "assertions[2]: Assertion failed: lineage")
	assert.Contains(t, joined, "assertions[3]: Assertion failed: trace_order")
}

func TestRun_UnexpectedFailure(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/failures.yaml")
	require.NoError(t, err)

	scenario.Flow[1].Expect = nil

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `flow[1] "y = fail(seed)": unexpected error`)
}

func TestAssertValue_ResolvesAmbiguity(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/failures.yaml")
	require.NoError(t, err)
	scenario.Assertions = []Assertion{{Type: AssertValue, Block: "x", Files: map[string]string{"value": "1"}}}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "AMBIGUOUS_NAME")
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown field",
			body: "name: a\ndescription: b\nassertion: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			body: "description: b\nflow: [{run: y = f(x)}]\nassertions: [{type: stats, expect: {data: 1}}]\n",
			want: "name is required",
		},
		{
			name: "missing assertions",
			body: "name: a\ndescription: b\nflow: [{run: y = f(x)}]\n",
			want: "assertions list is required",
		},
		{
			name: "function and data",
			body: "name: a\ndescription: b\nblocks: [{function: f, data: d}]\nassertions: [{type: stats, expect: {data: 1}}]\n",
			want: "exactly one of function or data",
		},
		{
			name: "malformed run without expected error",
			body: "name: a\ndescription: b\nflow: [{run: \"y = f(x\"}]\nassertions: [{type: stats, expect: {data: 1}}]\n",
			want: "MALFORMED_EXPRESSION",
		},
		{
			name: "unknown stat",
			body: "name: a\ndescription: b\nflow: [{run: y = f(x)}]\nassertions: [{type: stats, expect: {nodes: 1}}]\n",
			want: `unknown stat "nodes"`,
		},
		{
			name: "unknown assertion type",
			body: "name: a\ndescription: b\nflow: [{run: y = f(x)}]\nassertions: [{type: final_state}]\n",
			want: `unknown assertion type "final_state"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesBlockPaths(t *testing.T) {
	path := writeScenario(t, "name: a\ndescription: b\nblocks: [{data: seed}, {function: /abs/fn}]\nassertions: [{type: stats, expect: {data: 1}}]\n")

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "seed"), scenario.Blocks[0].Data)
	assert.Equal(t, "/abs/fn", scenario.Blocks[1].Function)
}

func TestGoldenJSON_SanitizesHashCodes(t *testing.T) {
	fn := strings.Repeat("a", 64)
	seed := strings.Repeat("b", 64)
	out := strings.Repeat("c", 64)
	result := &Result{
		Trace: []TraceEvent{
			{Type: EventRegister, Seq: 1, Kind: "function", Name: "f", ID: fn, Created: true},
			{Type: EventRegister, Seq: 2, Kind: "data", Name: "s", ID: seed, Created: true},
			{Type: EventExecute, Seq: 3, Expr: "o = f(s)", RunID: "run-1", Function: fn,
				Inputs: []string{seed}, Output: out, Files: map[string]string{"value": "1"}},
		},
		Stats: map[string]int{"data": 2},
	}

	data, err := GoldenJSON("t", result)
	require.NoError(t, err)

	s := string(data)
	assert.NotContains(t, s, fn)
	assert.Contains(t, s, `"function": "#1"`)
	assert.Contains(t, s, `"output": "#3"`)
	assert.True(t, strings.HasSuffix(s, "}\n"))
}
