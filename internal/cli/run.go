package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fgdb/internal/engine"
	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/operation"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Input   string
	Expr    string
	Timeout time.Duration

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// ExecutionResult describes one committed execution.
type ExecutionResult struct {
	Line     int      `json:"line,omitempty"`
	Expr     string   `json:"expr"`
	RunID    string   `json:"run_id"`
	Function string   `json:"function"`
	Inputs   []string `json:"inputs"`
	Output   string   `json:"output"`
	Name     string   `json:"name"`
	Seq      int64    `json:"seq"`
	Millis   int64    `json:"duration_ms"`
}

// RunResult is the JSON payload of run.
type RunResult struct {
	Executions []ExecutionResult `json:"executions"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute operations",
		Long: `Execute operations of the form "output = function(input)".

References are block names or 64-character hash codes. With -i, the file
holds one operation per line (blank lines and # comments are skipped); "-"
reads standard input. Lines run in order and each commits on its own, so a
line may use the output of an earlier one. The batch stops at the first
failure; earlier lines stay committed.

Examples:
  fgdb run -e "result = double(seed)"
  fgdb run -i ops.txt --timeout 30s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperations(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "file of operations, one per line (- for stdin)")
	cmd.Flags().StringVarP(&opts.Expr, "expr", "e", "", "single operation expression")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "execution timeout per operation (overrides manifest and config)")
	cmd.MarkFlagsMutuallyExclusive("input", "expr")
	cmd.MarkFlagsOneRequired("input", "expr")

	return cmd
}

func runOperations(opts *RunOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	lines, err := readOperations(opts, cmd.InOrStdin())
	if err != nil {
		return f.Fail("failed to parse operations", err)
	}

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return f.Fail("failed to open store", err)
	}
	defer s.Close()

	var extra []engine.EngineOption
	if cmd.Flags().Changed("timeout") {
		extra = append(extra, engine.WithExecTimeout(opts.Timeout))
	}
	eng := s.engine(opts.RunIDs, extra...)

	// Setup signal handling so Ctrl-C kills the running function
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, cancelling", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var results []*engine.Result
	if opts.Expr != "" {
		var res *engine.Result
		res, err = eng.Run(ctx, opts.Expr)
		if res != nil {
			results = append(results, res)
		}
	} else {
		results, err = eng.RunBatch(ctx, lines)
	}

	executions := make([]ExecutionResult, len(results))
	for i, res := range results {
		executions[i] = newExecutionResult(res, lineNumber(lines, i))
	}

	if err != nil {
		if opts.Format != "json" {
			printExecutions(cmd.OutOrStdout(), executions)
		}
		return f.FailWith("operation failed", err, map[string]any{"committed": len(executions)})
	}

	s.logger.Debug("operations committed", slog.Int("count", len(executions)))
	if opts.Format == "json" {
		return f.Success(RunResult{Executions: executions})
	}
	printExecutions(cmd.OutOrStdout(), executions)
	return nil
}

// readOperations parses -i before the store is touched, so a malformed
// batch runs nothing. A single -e expression is parsed by the engine.
func readOperations(opts *RunOptions, stdin io.Reader) ([]operation.Line, error) {
	if opts.Input == "" {
		return nil, nil
	}
	if opts.Input == "-" {
		return operation.ParseBatch(stdin)
	}
	file, err := os.Open(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("open operations file: %w", err)
	}
	defer file.Close()
	return operation.ParseBatch(file)
}

func lineNumber(lines []operation.Line, i int) int {
	if i < len(lines) {
		return lines[i].Number
	}
	return 0
}

func newExecutionResult(res *engine.Result, line int) ExecutionResult {
	return ExecutionResult{
		Line:     line,
		Expr:     res.Expr,
		RunID:    res.RunID,
		Function: res.Edge.Function,
		Inputs:   res.Edge.Inputs,
		Output:   res.Output.ID,
		Name:     res.Output.Name,
		Seq:      res.Output.Seq,
		Millis:   res.Duration.Milliseconds(),
	}
}

func printExecutions(w io.Writer, executions []ExecutionResult) {
	for _, ex := range executions {
		fmt.Fprintf(w, "%s -> %s (%s)\n", ex.Expr, ex.Name, ir.Head(ex.Output))
	}
}
