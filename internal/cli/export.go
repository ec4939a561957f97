package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the snapshot as canonical JSON",
		Long: `Write the complete MG and OG snapshot as canonical JSON.

The same snapshot always exports to the same bytes. The output ignores
--format.

Examples:
  fgdb export
  fgdb export -o snapshot.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return f.Fail("failed to open store", err)
	}
	defer s.Close()

	data, err := s.store.Export(commandContext(cmd))
	if err != nil {
		return f.Fail("failed to export snapshot", err)
	}

	if opts.Output == "" {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
		return err
	}
	if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
		return f.Fail("failed to write export", err)
	}
	s.logger.Info("snapshot exported", "path", opts.Output, "bytes", len(data))
	return nil
}
