package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/fgdb/internal/block"
	"github.com/roach88/fgdb/internal/graph"
	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/operation"
)

// AssertionContext is what assertions evaluate against.
type AssertionContext struct {
	Graph  *graph.Graph
	Blocks *block.Store
	Trace  []TraceEvent
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		switch {
		case event.Error != "":
			fmt.Fprintf(&buf, "  [%d] %s %s%s -> %s\n", i+1, event.Type, event.Name, event.Expr, event.Error)
		case event.Type == EventRegister:
			fmt.Fprintf(&buf, "  [%d] register %s %s\n", i+1, event.Kind, event.Name)
		default:
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, event.Expr)
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertStats:
		return assertStats(a, actx)
	case AssertValue:
		return assertValue(a, actx)
	case AssertLineage:
		return assertLineage(a, actx)
	case AssertNameCount:
		return assertNameCount(a, actx)
	case AssertTraceOrder:
		return assertTraceOrder(a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertStats checks the listed graph counts.
func assertStats(a Assertion, actx *AssertionContext) error {
	got := statsMap(actx.Graph.Stats())
	subset := make(map[string]int, len(a.Expect))
	for k := range a.Expect {
		subset[k] = got[k]
	}
	if diff := cmp.Diff(a.Expect, subset); diff != "" {
		return &AssertionError{
			Type:     AssertStats,
			Expected: fmt.Sprintf("%v", a.Expect),
			Actual:   fmt.Sprintf("%v (-want +got):\n%s", subset, diff),
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertValue checks payload files of a block (subset match).
func assertValue(a Assertion, actx *AssertionContext) error {
	n, err := resolveBlock(actx.Graph, a.Block)
	if err != nil {
		return err
	}
	files, err := readFiles(actx.Blocks, n.ID)
	if err != nil {
		return err
	}
	if diff := diffFiles(a.Files, files); diff != "" {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s holds %v", a.Block, a.Files),
			Actual:   fmt.Sprintf("payload differs (-want +got):\n%s", diff),
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertLineage checks the functions applied to produce a block, oldest
// first. An empty list asserts a registered (not computed) block.
func assertLineage(a Assertion, actx *AssertionContext) error {
	n, err := resolveBlock(actx.Graph, a.Block)
	if err != nil {
		return err
	}
	got := []string{}
	for _, e := range actx.Graph.Lineage(n.ID) {
		fn, _ := actx.Graph.Node(e.Function)
		got = append(got, fn.Name)
	}
	want := a.Functions
	if want == nil {
		want = []string{}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		return &AssertionError{
			Type:     AssertLineage,
			Expected: fmt.Sprintf("%s computed by %v", a.Block, want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertNameCount checks how many blocks carry a name.
func assertNameCount(a Assertion, actx *AssertionContext) error {
	got := len(actx.Graph.FindByName(a.Name))
	if got != a.Count {
		return &AssertionError{
			Type:     AssertNameCount,
			Expected: fmt.Sprintf("%d blocks named %q", a.Count, a.Name),
			Actual:   fmt.Sprintf("%d", got),
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the expressions committed in this order.
// Other executions may be interleaved.
func assertTraceOrder(a Assertion, actx *AssertionContext) error {
	want := make([]string, len(a.Exprs))
	for i, src := range a.Exprs {
		want[i] = src
		if expr, err := operation.Parse(src); err == nil {
			want[i] = expr.String()
		}
	}
	next := 0
	for _, ev := range actx.Trace {
		if next < len(want) && ev.Type == EventExecute && ev.Error == "" && ev.Expr == want[next] {
			next++
		}
	}
	if next < len(a.Exprs) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("executions in order: %v", a.Exprs),
			Actual:   fmt.Sprintf("%q not committed after %v", a.Exprs[next], a.Exprs[:next]),
			Trace:    actx.Trace,
		}
	}
	return nil
}

// resolveBlock resolves a block name or hash code against the final graph.
func resolveBlock(g *graph.Graph, ref string) (ir.BlockNode, error) {
	r, err := operation.ParseRef(ref)
	if err != nil {
		return ir.BlockNode{}, err
	}
	return operation.Resolve(g, r)
}
