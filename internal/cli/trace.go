package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fgdb/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
}

// TraceResult holds the lineage of one block.
type TraceResult struct {
	Block    NodeView        `json:"block"`
	Sources  []NodeView      `json:"sources"`
	Timeline []ExecutionView `json:"timeline"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <ref>",
		Short: "Show how a data block was computed",
		Long: `Show the lineage of a block through the Operation Graph.

The output includes:
- Timeline: every execution that contributed to the block, oldest first
- Sources: the registered data blocks the computation started from

Examples:
  fgdb trace result
  fgdb trace 3f2a... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	return cmd
}

func runTrace(opts *TraceOptions, ref string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return f.Fail("failed to open store", err)
	}
	defer s.Close()

	g, err := s.graph(commandContext(cmd))
	if err != nil {
		return f.Fail("failed to load graph", err)
	}
	n, err := resolve(g, ref)
	if err != nil {
		return f.Fail("failed to resolve block", err)
	}

	result := TraceResult{
		Block:    nodeView(g, n),
		Sources:  []NodeView{},
		Timeline: []ExecutionView{},
	}
	seen := map[string]bool{}
	for _, e := range g.Lineage(n.ID) {
		result.Timeline = append(result.Timeline, executionView(g, e))
		for _, in := range e.Inputs {
			if _, produced := g.ProducedBy(in); produced || seen[in] {
				continue
			}
			seen[in] = true
			if src, ok := g.Node(in); ok {
				result.Sources = append(result.Sources, nodeView(g, src))
			}
		}
	}

	if opts.Format == "json" {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Trace for %s#%s (%s)\n", n.Name, ir.Head(n.ID), n.Kind)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (registered, not computed)")
	}
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s\n", e.Seq, e.Expr)
		f.VerboseLog("       run %s at %s", e.RunID, e.ExecutedAt)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Sources ===")
	if len(result.Sources) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, src := range result.Sources {
		fmt.Fprintf(w, "  %s#%s\n", src.Name, ir.Head(src.ID))
	}
	return nil
}
