package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/fgdb/internal/block"
	"github.com/roach88/fgdb/internal/config"
	"github.com/roach88/fgdb/internal/graph"
	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/operation"
)

// SnapshotStore persists the graph snapshot.
// Implemented by store.Store.
type SnapshotStore interface {
	Load(ctx context.Context) (ir.Snapshot, error)
	Save(ctx context.Context, snap ir.Snapshot) error
	Lock(ctx context.Context) (release func() error, err error)
}

// Scratch layout of one run under the work directory.
const (
	workFunction = "function"
	workInput    = "input"
	workOutput   = "output"
)

// inheritedEnv lists the variables function processes inherit from fgdb.
var inheritedEnv = []string{"PATH", "HOME"}

// Engine registers blocks and executes operations against one store.
//
// Engine holds no graph state between calls: every call loads the snapshot
// under the store lock and either saves a complete new snapshot or leaves
// it untouched.
type Engine struct {
	store   SnapshotStore
	blocks  *block.Store
	runIDs  RunIDGenerator
	runner  Runner
	wall    WallClock
	logger  *slog.Logger
	workDir string

	execTimeout time.Duration
	override    *time.Duration
	keepWorkdir bool
	env         map[string]string
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithExecTimeout bounds each function execution, overriding any timeout
// declared in a function's manifest. Zero disables the bound.
func WithExecTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.override = &d
	}
}

// WithKeepWorkdir keeps run scratch directories after the run ends.
func WithKeepWorkdir(keep bool) EngineOption {
	return func(e *Engine) {
		e.keepWorkdir = keep
	}
}

// WithEnv adds variables to the environment of function processes.
func WithEnv(env map[string]string) EngineOption {
	return func(e *Engine) {
		maps.Copy(e.env, env)
	}
}

// WithConfig applies the execution settings of cfg. The configured timeout
// applies to functions whose manifest declares none.
func WithConfig(cfg config.Config) EngineOption {
	return func(e *Engine) {
		e.execTimeout = cfg.ExecTimeout
		e.keepWorkdir = cfg.KeepWorkdir
		maps.Copy(e.env, cfg.Env)
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) EngineOption {
	return func(e *Engine) {
		e.runner = r
	}
}

// WithWallClock replaces the clock used for createdAt and executedAt.
func WithWallClock(c WallClock) EngineOption {
	return func(e *Engine) {
		e.wall = c
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWorkDir sets the directory holding run scratch directories.
// Default: a "work" directory beside the blocks directory. A relative
// directory is resolved against the current directory when New returns.
func WithWorkDir(dir string) EngineOption {
	return func(e *Engine) {
		e.workDir = dir
	}
}

// New creates an Engine over a snapshot store and a block store.
func New(s SnapshotStore, blocks *block.Store, runIDs RunIDGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       s,
		blocks:      blocks,
		runIDs:      runIDs,
		runner:      ProcessRunner{},
		wall:        SystemClock{},
		logger:      slog.Default(),
		workDir:     filepath.Join(filepath.Dir(blocks.Root()), "work"),
		execTimeout: config.DefaultExecTimeout,
		env:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	// Function processes run inside their scratch copy, so every path
	// handed to them must be absolute.
	if abs, err := filepath.Abs(e.workDir); err == nil {
		e.workDir = abs
	}
	return e
}

// Registration is the result of Register.
type Registration struct {
	Node    ir.BlockNode
	Created bool // False when the payload was already registered
}

// Register stores the block at src and adds it to the MG.
//
// Registration is idempotent: a payload whose hash code is already in the MG
// returns the existing node and creates nothing. A missing payload directory
// for a known block (removed by hand) is restored.
func (e *Engine) Register(ctx context.Context, kind ir.Kind, src, name string) (*Registration, error) {
	p, err := block.Prepare(kind, src, name)
	if err != nil {
		return nil, err
	}

	var reg *Registration
	err = e.locked(ctx, func(g *graph.Graph) error {
		if existing, ok := g.Node(p.ID); ok {
			if !e.blocks.Has(p.ID) {
				if err := e.blocks.Put(existing, p.SourcePath); err != nil {
					return fmt.Errorf("restore block payload: %w", err)
				}
			}
			e.logger.Debug("block already registered",
				"id", ir.Head(existing.ID),
				"kind", existing.Kind,
				"name", existing.Name,
			)
			reg = &Registration{Node: existing}
			return nil
		}

		node := ir.BlockNode{
			ID:         p.ID,
			Kind:       p.Kind,
			Name:       p.Name,
			CreatedAt:  e.wall.Now(),
			SourcePath: p.SourcePath,
			Digest:     p.Digest,
			Seq:        NewClockAt(g.LastSeq()).Next(),
		}
		next, err := g.WithBlock(node)
		if err != nil {
			return err
		}
		if err := e.commit(ctx, next, node, p.SourcePath); err != nil {
			return err
		}

		e.logger.Info("block registered",
			"id", ir.Head(node.ID),
			"kind", node.Kind,
			"name", node.Name,
			"seq", node.Seq,
		)
		reg = &Registration{Node: node, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Result describes a committed execution.
type Result struct {
	RunID    string
	Expr     string
	Function ir.BlockNode
	Input    ir.BlockNode
	Output   ir.BlockNode
	Edge     ir.ExecutionEdge
	Stdout   []byte
	Duration time.Duration
	State    State
}

// Run parses expr, resolves its references and executes it.
func (e *Engine) Run(ctx context.Context, expr string) (*Result, error) {
	parsed, err := operation.Parse(expr)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, parsed)
}

// RunBatch executes lines in order, each in its own commit cycle, so a line
// may consume the output of an earlier one. It stops at the first failure
// and returns the results committed before it. Committed lines stay
// committed.
func (e *Engine) RunBatch(ctx context.Context, lines []operation.Line) ([]*Result, error) {
	results := make([]*Result, 0, len(lines))
	for _, ln := range lines {
		res, err := e.run(ctx, ln.Expr)
		if err != nil {
			return results, fmt.Errorf("line %d: %w", ln.Number, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Execute runs function fnID on data block inputID and records the output
// under outputName. Both IDs are hash codes.
func (e *Engine) Execute(ctx context.Context, fnID, inputID, outputName string) (*Result, error) {
	expr := &operation.Expression{
		Output:   outputName,
		Function: operation.HashRef(fnID),
		Inputs:   []operation.Ref{operation.HashRef(inputID)},
	}
	expr.Source = expr.String()
	return e.run(ctx, expr)
}

func (e *Engine) run(ctx context.Context, expr *operation.Expression) (*Result, error) {
	e.logger.Debug("operation parsed", "state", StateParsed, "expr", expr.String())

	var res *Result
	err := e.locked(ctx, func(g *graph.Graph) error {
		resolved, err := operation.ResolveExpression(g, expr)
		if err != nil {
			return err
		}
		if len(resolved.Inputs) != 1 {
			mismatch := ir.NewError(ir.ErrCodeTypeMismatch, "function blocks take exactly one input, got %d", len(resolved.Inputs))
			mismatch.Ref = expr.String()
			return mismatch
		}
		res, err = e.execute(ctx, g, resolved.Function, resolved.Inputs[0], expr.Output)
		if res != nil {
			res.Expr = expr.String()
		}
		return err
	})
	if err != nil {
		e.logger.Warn("operation failed", "state", StateFailed, "expr", expr.String(), "error", err)
		return nil, err
	}
	return res, nil
}

// execute invokes fn on in and commits the output. g is the graph loaded
// under the current lock.
func (e *Engine) execute(ctx context.Context, g *graph.Graph, fn, in ir.BlockNode, outputName string) (*Result, error) {
	runID := e.runIDs.Generate()
	log := e.logger.With(
		"run_id", runID,
		"function", ir.Head(fn.ID),
		"input", ir.Head(in.ID),
		"output", outputName,
	)
	log.Debug("operation resolved", "state", StateResolved)

	manifest, err := e.blocks.Manifest(fn.ID)
	if err != nil {
		return nil, executionFailed(runID, nil, err, "load entry point of %s", fn.Name)
	}

	work := filepath.Join(e.workDir, runID)
	if err := os.MkdirAll(work, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	if !e.keepWorkdir {
		defer func() {
			if err := os.RemoveAll(work); err != nil {
				log.Warn("remove work directory", "path", work, "error", err)
			}
		}()
	}

	fnDir := filepath.Join(work, workFunction)
	inDir := filepath.Join(work, workInput)
	outDir := filepath.Join(work, workOutput)
	if err := e.blocks.Materialize(fn.ID, fnDir); err != nil {
		return nil, executionFailed(runID, nil, err, "materialize function %s", fn.Name)
	}
	if err := e.blocks.Materialize(in.ID, inDir); err != nil {
		return nil, executionFailed(runID, nil, err, "materialize input %s", in.Name)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	inv := Invocation{
		Argv:    append(manifest.Command(fnDir), inDir, outDir),
		Dir:     fnDir,
		Env:     e.environ(runID, manifest),
		Timeout: e.timeout(manifest),
	}
	log.Info("invoking function", "state", StateInvoked, "timeout", inv.Timeout)

	outcome, err := e.runner.Run(ctx, inv)
	switch {
	case err != nil:
		return nil, executionFailed(runID, &outcome, err, "function %s did not run", fn.Name)
	case outcome.TimedOut:
		return nil, executionFailed(runID, &outcome, nil, "function %s timed out after %s", fn.Name, inv.Timeout)
	case outcome.ExitCode != 0:
		return nil, executionFailed(runID, &outcome, nil, "function %s exited with status %d", fn.Name, outcome.ExitCode)
	}

	summary, err := block.Inspect(outDir)
	if err != nil {
		return nil, executionFailed(runID, &outcome, err, "read output of %s", fn.Name)
	}
	if summary.Files == 0 {
		return nil, executionFailed(runID, &outcome, nil, "function %s produced no output", fn.Name)
	}

	seq := NewClockAt(g.LastSeq()).Next()
	inputs := []string{in.ID}
	id, err := ir.OutputID(summary.Digest, fn.ID, inputs, seq)
	if err != nil {
		return nil, err
	}
	now := e.wall.Now()
	out := ir.BlockNode{
		ID:        id,
		Kind:      ir.KindData,
		Name:      outputName,
		CreatedAt: now,
		Digest:    summary.Digest,
		Seq:       seq,
	}
	edge := ir.ExecutionEdge{
		RunID:      runID,
		Inputs:     inputs,
		Function:   fn.ID,
		Output:     id,
		ExecutedAt: now,
		Order:      seq,
	}
	next, err := g.WithExecution(edge, out)
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, next, out, outDir); err != nil {
		return nil, err
	}

	log.Info("execution committed",
		"state", StateCommitted,
		"id", ir.Head(id),
		"seq", seq,
		"files", summary.Files,
		"bytes", summary.Bytes,
		"duration", outcome.Duration,
	)
	return &Result{
		RunID:    runID,
		Function: fn,
		Input:    in,
		Output:   out,
		Edge:     edge,
		Stdout:   outcome.Stdout,
		Duration: outcome.Duration,
		State:    StateCommitted,
	}, nil
}

// locked runs fn on the current graph while holding the store lock.
func (e *Engine) locked(ctx context.Context, fn func(*graph.Graph) error) error {
	release, err := e.store.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			e.logger.Warn("release store lock", "error", err)
		}
	}()

	snap, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	g, err := graph.New(snap)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	return fn(g)
}

// commit stores the payload of node and saves next. When the save fails the
// stored payload is removed again, leaving both stores as they were.
func (e *Engine) commit(ctx context.Context, next *graph.Graph, node ir.BlockNode, src string) error {
	if err := e.blocks.Put(node, src); err != nil {
		return err
	}
	if err := e.store.Save(ctx, next.Snapshot()); err != nil {
		if rmErr := e.blocks.Remove(node.ID); rmErr != nil {
			e.logger.Error("remove uncommitted block", "id", ir.Head(node.ID), "error", rmErr)
		}
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// environ builds the sorted environment of a function process: inherited
// variables, then configured ones, then the manifest's, then FGDB_RUN_ID.
func (e *Engine) environ(runID string, m *block.Manifest) []string {
	env := make(map[string]string)
	for _, k := range inheritedEnv {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	maps.Copy(env, e.env)
	maps.Copy(env, m.Env)
	env["FGDB_RUN_ID"] = runID

	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}

// timeout picks the bound of one execution: an explicit override, then the
// manifest's timeout, then the configured default.
func (e *Engine) timeout(m *block.Manifest) time.Duration {
	if e.override != nil {
		return *e.override
	}
	if d := m.TimeoutDuration(); d > 0 {
		return d
	}
	return e.execTimeout
}
