package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fgdb/internal/ir"
)

// CatOptions holds flags for the cat command.
type CatOptions struct {
	*RootOptions
	File string
}

// CatResult is the JSON payload of cat.
type CatResult struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Files map[string]string `json:"files"`
}

// NewCatCommand creates the cat command.
func NewCatCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cat <ref>",
		Short: "Print the payload of a data block",
		Long: `Print the payload files of a data block.

A single-file payload is printed as is. Several files are printed one after
the other, each under a "==> path <==" header; --file selects one.

Examples:
  fgdb cat result
  fgdb cat result --file value`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "payload file to print")

	return cmd
}

func runCat(opts *CatOptions, ref string, cmd *cobra.Command) error {
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
	if n.Kind != ir.KindData {
		return f.Fail("cannot print block", ir.NewTypeMismatchError(ref, ir.KindData, n.Kind))
	}

	names, err := s.blocks.Files(n.ID)
	if err != nil {
		return f.Fail("failed to list payload", err)
	}
	if opts.File != "" {
		names = filterFile(names, opts.File)
		if len(names) == 0 {
			e := ir.NewError(ir.ErrCodeUnknownBlock, "block %s has no file %q", ir.Head(n.ID), opts.File)
			e.Ref = opts.File
			return f.Fail("cannot print block", e)
		}
	}

	contents := make(map[string]string, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.blocks.PayloadPath(n.ID), filepath.FromSlash(name)))
		if err != nil {
			return f.Fail("failed to read payload", err)
		}
		contents[name] = string(data)
	}

	if opts.Format == "json" {
		return f.Success(CatResult{ID: n.ID, Name: n.Name, Files: contents})
	}

	w := cmd.OutOrStdout()
	for i, name := range names {
		if len(names) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "==> %s <==\n", name)
		}
		fmt.Fprint(w, contents[name])
	}
	return nil
}

func filterFile(names []string, want string) []string {
	want = filepath.ToSlash(want)
	for _, name := range names {
		if name == want {
			return []string{name}
		}
	}
	return nil
}
