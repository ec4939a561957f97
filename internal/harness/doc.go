// Package harness runs FGDB scenarios end to end.
//
// A scenario is a YAML file that registers blocks, runs operation
// expressions and asserts on the resulting graphs:
//
//	name: double-seed
//	description: result = double(seed) yields 30
//	blocks:
//	  - function: blocks/double
//	  - data: blocks/seed
//	flow:
//	  - run: result = double(seed)
//	    expect:
//	      files: {value: "30"}
//	assertions:
//	  - type: stats
//	    expect: {functions: 1, data: 2, og_edges: 1}
//
// Each scenario runs against a fresh store in a temporary directory with a
// stepping wall clock and sequential run IDs, so its trace is reproducible.
// Block paths are relative to the scenario file.
//
// The trace of a run can be compared against a golden file. Hash codes are
// replaced by #1, #2, ... in order of first appearance so goldens do not
// change when hashing inputs (such as timestamps) change.
package harness
