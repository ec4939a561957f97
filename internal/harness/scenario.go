package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fgdb/internal/operation"
)

// Scenario defines an end-to-end test of one store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Blocks are registered in order before the flow runs.
	Blocks []BlockStep `yaml:"blocks"`

	// Flow contains operation expressions, run in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final graphs.
	Assertions []Assertion `yaml:"assertions"`
}

// BlockStep registers one block. Exactly one of Function and Data is set.
type BlockStep struct {
	Function string        `yaml:"function,omitempty"`
	Data     string        `yaml:"data,omitempty"`
	Name     string        `yaml:"name,omitempty"`
	Expect   *ExpectClause `yaml:"expect,omitempty"`
}

// Source returns the block path of the step.
func (s BlockStep) Source() string {
	if s.Function != "" {
		return s.Function
	}
	return s.Data
}

// FlowStep runs one operation expression.
type FlowStep struct {
	Run    string        `yaml:"run"`
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
// Without a clause the step must succeed.
type ExpectClause struct {
	// Error is the expected error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Files are expected payload files of the step's block, compared after
	// trimming surrounding whitespace. Subset match.
	Files map[string]string `yaml:"files,omitempty"`

	// Created is the expected registration outcome (new or already known).
	Created *bool `yaml:"created,omitempty"`
}

// Assertion validates the final graphs.
type Assertion struct {
	// Type specifies the assertion type:
	// - "stats": graph counts match Expect (subset)
	// - "value": payload of Block matches Files (subset)
	// - "lineage": functions applied to produce Block, oldest first
	// - "name_count": Name matches exactly Count blocks
	// - "trace_order": expressions committed in the given order
	Type string `yaml:"type"`

	// Block references a block by name or hash code (value, lineage).
	Block string `yaml:"block,omitempty"`

	// Files are the expected payload files (value).
	Files map[string]string `yaml:"files,omitempty"`

	// Functions are the expected function names (lineage).
	Functions []string `yaml:"functions,omitempty"`

	// Name is the block name to count (name_count).
	Name string `yaml:"name,omitempty"`

	// Count is the expected number of blocks (name_count).
	Count int `yaml:"count,omitempty"`

	// Expect holds expected graph counts keyed like graph.Stats (stats).
	Expect map[string]int `yaml:"expect,omitempty"`

	// Exprs is the expected commit order (trace_order).
	Exprs []string `yaml:"exprs,omitempty"`
}

// Assertion type constants.
const (
	AssertStats      = "stats"
	AssertValue      = "value"
	AssertLineage    = "lineage"
	AssertNameCount  = "name_count"
	AssertTraceOrder = "trace_order"
)

// statKeys are the keys accepted by a stats assertion.
var statKeys = map[string]bool{
	"mg_nodes": true, "mg_edges": true, "og_nodes": true, "og_edges": true,
	"functions": true, "data": true, "produced": true,
}

// LoadScenario reads and parses a scenario YAML file. Block paths are
// resolved relative to the directory of the file.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving block paths relative to basePath.
//
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range scenario.Blocks {
		step := &scenario.Blocks[i]
		step.Function = resolvePath(basePath, step.Function)
		step.Data = resolvePath(basePath, step.Data)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 && len(s.Blocks) == 0 {
		return fmt.Errorf("blocks or flow must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Blocks {
		if (step.Function == "") == (step.Data == "") {
			return fmt.Errorf("blocks[%d]: exactly one of function or data is required", i)
		}
	}

	for i, step := range s.Flow {
		if step.Run == "" {
			return fmt.Errorf("flow[%d]: run is required", i)
		}
		if _, err := operation.Parse(step.Run); err != nil && (step.Expect == nil || step.Expect.Error == "") {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertStats:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for stats", index)
		}
		for k := range a.Expect {
			if !statKeys[k] {
				return fmt.Errorf("assertions[%d]: unknown stat %q", index, k)
			}
		}
	case AssertValue:
		if a.Block == "" || len(a.Files) == 0 {
			return fmt.Errorf("assertions[%d]: block and files are required for value", index)
		}
	case AssertLineage:
		if a.Block == "" {
			return fmt.Errorf("assertions[%d]: block is required for lineage", index)
		}
	case AssertNameCount:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for name_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for name_count", index)
		}
	case AssertTraceOrder:
		if len(a.Exprs) == 0 {
			return fmt.Errorf("assertions[%d]: exprs list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
