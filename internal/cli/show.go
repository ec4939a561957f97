package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/fgdb/internal/graph"
	"github.com/roach88/fgdb/internal/ir"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Nodes      bool
	Executions bool
}

// NodeView is a block as listed by show.
type NodeView struct {
	ID         string  `json:"id"`
	Kind       ir.Kind `json:"kind"`
	Name       string  `json:"name"`
	Seq        int64   `json:"seq"`
	CreatedAt  string  `json:"created_at"`
	SourcePath string  `json:"source_path,omitempty"`
	InMG       bool    `json:"in_mg"`
	InOG       bool    `json:"in_og"`
}

// ExecutionView is an OG edge with the names of its blocks.
type ExecutionView struct {
	Seq        int64    `json:"seq"`
	RunID      string   `json:"run_id"`
	Function   string   `json:"function"`
	Inputs     []string `json:"inputs"`
	Output     string   `json:"output"`
	Expr       string   `json:"expr"`
	ExecutedAt string   `json:"executed_at"`
}

// ShowResult is the JSON payload of show without a reference.
type ShowResult struct {
	Stats      graph.Stats     `json:"stats"`
	Nodes      []NodeView      `json:"nodes,omitempty"`
	Executions []ExecutionView `json:"executions,omitempty"`
}

// BlockDetail is the JSON payload of show REF.
type BlockDetail struct {
	NodeView
	Digest     string          `json:"digest,omitempty"`
	Parent     string          `json:"parent,omitempty"`
	ProducedBy *ExecutionView  `json:"produced_by,omitempty"`
	Consumers  []ExecutionView `json:"consumers"`
	Files      []string        `json:"files"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [ref]",
		Short: "Show graph statistics, listings or one block",
		Long: `Show the state of the store.

Without a reference, prints MG and OG statistics; --nodes lists every
block and --executions lists every execution. With a reference (name or
hash code), prints the block's metadata, its MG parent, the execution that
produced it and the executions that consumed it.

Examples:
  fgdb show
  fgdb show --nodes --executions
  fgdb show result`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowBlock(opts, args[0], cmd)
			}
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Nodes, "nodes", false, "list blocks")
	cmd.Flags().BoolVar(&opts.Executions, "executions", false, "list executions")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
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

	result := ShowResult{Stats: g.Stats()}
	if opts.Nodes {
		for _, n := range g.Nodes() {
			result.Nodes = append(result.Nodes, nodeView(g, n))
		}
	}
	if opts.Executions {
		for _, e := range g.OGEdges() {
			result.Executions = append(result.Executions, executionView(g, e))
		}
	}

	if opts.Format == "json" {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	st := result.Stats
	fmt.Fprintf(w, "MG: %d nodes, %d edges\n", st.MGNodes, st.MGEdges)
	fmt.Fprintf(w, "OG: %d nodes, %d edges\n", st.OGNodes, st.OGEdges)
	fmt.Fprintf(w, "Blocks: %d functions, %d data (%d produced)\n", st.Functions, st.Data, st.Produced)

	if opts.Nodes {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Nodes ===")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tHEAD\tKIND\tNAME\tGRAPHS\tCREATED")
		for _, n := range result.Nodes {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", n.Seq, ir.Head(n.ID), n.Kind, n.Name, graphs(n), n.CreatedAt)
		}
		tw.Flush()
	}
	if opts.Executions {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Executions ===")
		if len(result.Executions) == 0 {
			fmt.Fprintln(w, "  (no executions)")
		}
		for _, e := range result.Executions {
			fmt.Fprintf(w, "  [%d] %s  run %s\n", e.Seq, e.Expr, e.RunID)
		}
	}
	return nil
}

func runShowBlock(opts *ShowOptions, ref string, cmd *cobra.Command) error {
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

	detail := BlockDetail{
		NodeView:  nodeView(g, n),
		Digest:    n.Digest,
		Consumers: []ExecutionView{},
		Files:     []string{},
	}
	if parent, ok := g.Parent(n.ID); ok {
		detail.Parent = parent
	}
	if e, ok := g.ProducedBy(n.ID); ok {
		v := executionView(g, e)
		detail.ProducedBy = &v
	}
	for _, e := range g.Consumers(n.ID) {
		detail.Consumers = append(detail.Consumers, executionView(g, e))
	}
	if n.Kind != ir.KindRoot {
		files, err := s.blocks.Files(n.ID)
		if err != nil {
			return f.Fail("failed to list payload", err)
		}
		detail.Files = files
	}

	if opts.Format == "json" {
		return f.Success(detail)
	}
	printBlockDetail(cmd.OutOrStdout(), g, detail)
	return nil
}

func printBlockDetail(w io.Writer, g *graph.Graph, d BlockDetail) {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", d.ID)
	fmt.Fprintf(tw, "Kind:\t%s\n", d.Kind)
	fmt.Fprintf(tw, "Name:\t%s\n", d.Name)
	fmt.Fprintf(tw, "Seq:\t%d\n", d.Seq)
	fmt.Fprintf(tw, "Created:\t%s\n", d.CreatedAt)
	fmt.Fprintf(tw, "Graphs:\t%s\n", graphs(d.NodeView))
	if d.SourcePath != "" {
		fmt.Fprintf(tw, "Source:\t%s\n", d.SourcePath)
	}
	if d.Digest != "" {
		fmt.Fprintf(tw, "Digest:\t%s\n", d.Digest)
	}
	if d.Parent != "" {
		fmt.Fprintf(tw, "Parent:\t%s\n", label(g, d.Parent))
	}
	if d.ProducedBy != nil {
		fmt.Fprintf(tw, "Produced by:\t%s (run %s)\n", d.ProducedBy.Expr, d.ProducedBy.RunID)
	}
	tw.Flush()

	if len(d.Consumers) > 0 {
		fmt.Fprintln(w, "Consumed by:")
		for _, e := range d.Consumers {
			fmt.Fprintf(w, "  [%d] %s\n", e.Seq, e.Expr)
		}
	}
	if len(d.Files) > 0 {
		fmt.Fprintln(w, "Files:")
		for _, name := range d.Files {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

func nodeView(g *graph.Graph, n ir.BlockNode) NodeView {
	return NodeView{
		ID:         n.ID,
		Kind:       n.Kind,
		Name:       n.Name,
		Seq:        n.Seq,
		CreatedAt:  ir.FormatTime(n.CreatedAt),
		SourcePath: n.SourcePath,
		InMG:       g.InMG(n.ID),
		InOG:       g.InOG(n.ID),
	}
}

func executionView(g *graph.Graph, e ir.ExecutionEdge) ExecutionView {
	inputs := make([]string, len(e.Inputs))
	for i, in := range e.Inputs {
		inputs[i] = label(g, in)
	}
	return ExecutionView{
		Seq:        e.Order,
		RunID:      e.RunID,
		Function:   e.Function,
		Inputs:     e.Inputs,
		Output:     e.Output,
		Expr:       fmt.Sprintf("%s = %s(%s)", label(g, e.Output), label(g, e.Function), strings.Join(inputs, ", ")),
		ExecutedAt: ir.FormatTime(e.ExecutedAt),
	}
}

// label renders a block as name#head.
func label(g *graph.Graph, id string) string {
	n, ok := g.Node(id)
	if !ok {
		return ir.Head(id)
	}
	return n.Name + "#" + ir.Head(id)
}

func graphs(n NodeView) string {
	var parts []string
	if n.InMG {
		parts = append(parts, "MG")
	}
	if n.InOG {
		parts = append(parts, "OG")
	}
	return strings.Join(parts, ",")
}
