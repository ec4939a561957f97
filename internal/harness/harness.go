package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/fgdb/internal/block"
	"github.com/roach88/fgdb/internal/engine"
	"github.com/roach88/fgdb/internal/graph"
	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/store"
	"github.com/roach88/fgdb/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario with a deterministic clock and run IDs.
type Harness struct {
	store  *store.Store
	blocks *block.Store
	engine *engine.Engine
	logger *slog.Logger
}

// sequentialRunIDs hands out run-1, run-2, ... without limit.
type sequentialRunIDs struct {
	n atomic.Int64
}

func (g *sequentialRunIDs) Generate() string {
	return fmt.Sprintf("run-%d", g.n.Add(1))
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh store under a temporary directory that is
// removed afterwards.
//
// Execution flow:
// 1. Initialize a store at testutil.Epoch
// 2. Register blocks in order
// 3. Run flow expressions in order
// 4. Evaluate assertions against the final graph
//
// Failed steps are recorded in the result, not returned. The error is
// reserved for problems with the harness itself.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext is Run with a context and an optional logger for the engine.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	dir, err := os.MkdirTemp("", "fgdb-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario store: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.OpenDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario store: %w", err)
	}
	defer st.Close()

	if _, err := st.Init(ctx, testutil.Epoch, false); err != nil {
		return nil, fmt.Errorf("failed to initialize scenario store: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	blocks := block.NewStore(filepath.Join(dir, store.BlocksDir))
	h := &Harness{
		store:  st,
		blocks: blocks,
		engine: engine.New(st, blocks, &sequentialRunIDs{},
			engine.WithWallClock(testutil.NewSteppingClock(testutil.Epoch.Add(time.Second), time.Second)),
			engine.WithWorkDir(filepath.Join(dir, store.WorkDir)),
			engine.WithLogger(logger),
		),
		logger: logger,
	}

	result := NewResult()
	for i, step := range scenario.Blocks {
		h.register(ctx, i, step, result)
	}
	for i, step := range scenario.Flow {
		h.execute(ctx, i, step, result)
	}

	snap, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load final snapshot: %w", err)
	}
	g, err := graph.New(snap)
	if err != nil {
		return nil, fmt.Errorf("final snapshot is inconsistent: %w", err)
	}
	result.Stats = statsMap(g.Stats())

	actx := &AssertionContext{Graph: g, Blocks: blocks, Trace: result.Trace}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) register(ctx context.Context, i int, step BlockStep, result *Result) {
	kind := ir.KindData
	if step.Function != "" {
		kind = ir.KindFunction
	}
	ev := TraceEvent{Type: EventRegister, Kind: string(kind)}

	reg, err := h.engine.Register(ctx, kind, step.Source(), step.Name)
	if err != nil {
		ev.Error = errorCode(err)
		result.Trace = append(result.Trace, ev)
		h.checkError(fmt.Sprintf("blocks[%d]", i), step.Expect, err, result)
		return
	}

	ev.Seq = reg.Node.Seq
	ev.Name = reg.Node.Name
	ev.ID = reg.Node.ID
	ev.Created = reg.Created
	result.Trace = append(result.Trace, ev)

	where := fmt.Sprintf("blocks[%d] %s", i, reg.Node.Name)
	if h.checkError(where, step.Expect, nil, result) {
		return
	}
	if step.Expect != nil && step.Expect.Created != nil && *step.Expect.Created != reg.Created {
		result.AddError(fmt.Sprintf("%s: expected created=%t, got %t", where, *step.Expect.Created, reg.Created))
	}
	h.checkFiles(where, step.Expect, reg.Node.ID, result)
}

func (h *Harness) execute(ctx context.Context, i int, step FlowStep, result *Result) {
	ev := TraceEvent{Type: EventExecute, Expr: step.Run}

	res, err := h.engine.Run(ctx, step.Run)
	if err != nil {
		ev.Error = errorCode(err)
		result.Trace = append(result.Trace, ev)
		h.checkError(fmt.Sprintf("flow[%d] %q", i, step.Run), step.Expect, err, result)
		return
	}

	files, err := readFiles(h.blocks, res.Output.ID)
	if err != nil {
		result.AddError(fmt.Sprintf("flow[%d] %q: %v", i, step.Run, err))
	}
	ev.Seq = res.Output.Seq
	ev.Expr = res.Expr
	ev.RunID = res.RunID
	ev.Function = res.Edge.Function
	ev.Inputs = res.Edge.Inputs
	ev.Output = res.Output.ID
	ev.Files = files
	result.Trace = append(result.Trace, ev)

	where := fmt.Sprintf("flow[%d] %q", i, step.Run)
	if h.checkError(where, step.Expect, nil, result) {
		return
	}
	h.checkFiles(where, step.Expect, res.Output.ID, result)
}

// checkError compares the outcome of a step with its expected error code.
// It reports whether the step failed, expectedly or not.
func (h *Harness) checkError(where string, expect *ExpectClause, err error, result *Result) bool {
	want := ""
	if expect != nil {
		want = expect.Error
	}
	got := ""
	if err != nil {
		got = errorCode(err)
	}

	switch {
	case want == got:
	case want == "":
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", where, err))
	case got == "":
		result.AddError(fmt.Sprintf("%s: expected error %s, got success", where, want))
	default:
		result.AddError(fmt.Sprintf("%s: expected error %s, got %v", where, want, err))
	}
	if err != nil {
		h.logger.Debug("scenario step failed", "step", where, "error", err)
	}
	return err != nil
}

func (h *Harness) checkFiles(where string, expect *ExpectClause, id string, result *Result) {
	if expect == nil || len(expect.Files) == 0 {
		return
	}
	files, err := readFiles(h.blocks, id)
	if err != nil {
		result.AddError(fmt.Sprintf("%s: %v", where, err))
		return
	}
	if diff := diffFiles(expect.Files, files); diff != "" {
		result.AddError(fmt.Sprintf("%s: payload mismatch (-want +got):\n%s", where, diff))
	}
}

// readFiles returns the trimmed contents of every payload file of block id.
func readFiles(blocks *block.Store, id string) (map[string]string, error) {
	names, err := blocks.Files(id)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(blocks.PayloadPath(id), filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files[name] = strings.TrimSpace(string(data))
	}
	return files, nil
}

// diffFiles compares the expected files with the matching subset of got.
func diffFiles(want, got map[string]string) string {
	subset := make(map[string]string, len(want))
	for name := range want {
		if v, ok := got[name]; ok {
			subset[name] = v
		}
	}
	trimmed := make(map[string]string, len(want))
	for name, v := range want {
		trimmed[name] = strings.TrimSpace(v)
	}
	return cmp.Diff(trimmed, subset)
}

func errorCode(err error) string {
	if code, ok := ir.CodeOf(err); ok {
		return string(code)
	}
	return "INTERNAL"
}

func statsMap(s graph.Stats) map[string]int {
	return map[string]int{
		"mg_nodes":  s.MGNodes,
		"mg_edges":  s.MGEdges,
		"og_nodes":  s.OGNodes,
		"og_edges":  s.OGEdges,
		"functions": s.Functions,
		"data":      s.Data,
		"produced":  s.Produced,
	}
}
