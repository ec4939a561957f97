package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fgdb/internal/ir"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Function string
	Data     string
	Name     string
}

// AddResult is the JSON payload of add.
type AddResult struct {
	ID      string  `json:"id"`
	Kind    ir.Kind `json:"kind"`
	Name    string  `json:"name"`
	Seq     int64   `json:"seq"`
	Created bool    `json:"created"`
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a function or data block",
		Long: `Register a block into the Management Graph.

A function block is a directory holding a block.yaml entry point or an
executable named "run". A data block is a file or a non-empty directory.
The name defaults to the source file or folder name. Registering the same
content again returns the existing block.

Examples:
  fgdb add -f ./double
  fgdb add -d ./seed --name seed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Function, "function", "f", "", "function block directory")
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "data block file or directory")
	cmd.Flags().StringVar(&opts.Name, "name", "", "block name (default: source base name)")
	cmd.MarkFlagsMutuallyExclusive("function", "data")
	cmd.MarkFlagsOneRequired("function", "data")

	return cmd
}

func runAdd(opts *AddOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	kind, src := ir.KindData, opts.Data
	if opts.Function != "" {
		kind, src = ir.KindFunction, opts.Function
	}

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return f.Fail("failed to open store", err)
	}
	defer s.Close()

	reg, err := s.engine(nil).Register(ctx, kind, src, opts.Name)
	if err != nil {
		return f.Fail(fmt.Sprintf("failed to register %s block", kind), err)
	}

	n := reg.Node
	if opts.Format == "json" {
		return f.Success(AddResult{ID: n.ID, Kind: n.Kind, Name: n.Name, Seq: n.Seq, Created: reg.Created})
	}

	w := cmd.OutOrStdout()
	if reg.Created {
		fmt.Fprintf(w, "Registered %s %s (%s)\n", n.Kind, n.Name, ir.Head(n.ID))
	} else {
		fmt.Fprintf(w, "Already registered: %s %s (%s)\n", n.Kind, n.Name, ir.Head(n.ID))
	}
	f.VerboseLog("  id: %s", n.ID)
	return nil
}
