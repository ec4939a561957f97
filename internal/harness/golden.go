package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fgdb/internal/ir"
)

// GoldenDir is where golden files live, relative to the test package.
const GoldenDir = "testdata/golden"

// hashNamer replaces hash codes with #1, #2, ... in order of first use.
type hashNamer map[string]string

func (n hashNamer) name(id string) string {
	if id == "" {
		return ""
	}
	if s, ok := n[id]; ok {
		return s
	}
	s := fmt.Sprintf("#%d", len(n)+1)
	n[id] = s
	return s
}

// GoldenJSON renders the trace and final stats of a run as indented
// canonical JSON with hash codes sanitized.
func GoldenJSON(scenarioName string, result *Result) ([]byte, error) {
	names := hashNamer{}
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = eventMap(ev, names)
	}
	stats := make(map[string]any, len(result.Stats))
	for k, v := range result.Stats {
		stats[k] = v
	}

	data, err := ir.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"trace":         trace,
		"stats":         stats,
	})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// eventMap converts a trace event to a map[string]any for canonical JSON.
// This is required because ir.MarshalCanonical only handles primitives,
// slices and maps.
func eventMap(ev TraceEvent, names hashNamer) map[string]any {
	m := map[string]any{"type": ev.Type}
	if ev.Seq != 0 {
		m["seq"] = ev.Seq
	}
	if ev.Error != "" {
		m["error"] = ev.Error
	}

	switch ev.Type {
	case EventRegister:
		m["kind"] = ev.Kind
		if ev.ID != "" {
			m["name"] = ev.Name
			m["id"] = names.name(ev.ID)
			m["created"] = ev.Created
		}
	case EventExecute:
		m["expr"] = ev.Expr
		if ev.Output != "" {
			m["run_id"] = ev.RunID
			m["function"] = names.name(ev.Function)
			inputs := make([]string, len(ev.Inputs))
			for i, id := range ev.Inputs {
				inputs[i] = names.name(id)
			}
			m["inputs"] = inputs
			m["output"] = names.name(ev.Output)
			m["files"] = ev.Files
		}
	}
	return m
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A trace that does not match
// the golden file fails the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := GoldenJSON(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
