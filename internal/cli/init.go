package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fgdb/internal/engine"
	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Force bool
}

// InitResult is the JSON payload of init.
type InitResult struct {
	Store  string `json:"store"`
	MGRoot string `json:"mg_root"`
	OGRoot string `json:"og_root"`
	Reset  bool   `json:"reset"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty store",
		Long: `Create a store holding only the MG and OG roots.

Fails when the store is already initialized. With --force the existing
graphs and every stored block are discarded.

Examples:
  fgdb init
  fgdb --store /tmp/db init --force`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "discard an existing store")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return f.Fail("failed to load config", err)
	}

	dir, err := filepath.Abs(opts.Store)
	if err != nil {
		return f.Fail("failed to resolve store directory", err)
	}
	st, err := store.OpenDir(dir)
	if err != nil {
		return f.Fail("failed to open store", err)
	}
	defer st.Close()
	st.SetLockOptions(lockOptions(cfg))

	release, err := st.Lock(ctx)
	if err != nil {
		return f.Fail("failed to lock store", err)
	}
	defer release()

	snap, err := st.Init(ctx, engine.SystemClock{}.Now(), opts.Force)
	if err != nil {
		return f.Fail("failed to initialize store", err)
	}

	if opts.Force {
		for _, sub := range []string{store.BlocksDir, store.WorkDir} {
			if err := os.RemoveAll(filepath.Join(dir, sub)); err != nil {
				return f.Fail("failed to reset store", err)
			}
		}
	}
	logger.Info("store initialized", "dir", dir, "force", opts.Force)

	result := InitResult{Store: dir, MGRoot: snap.MGRoot, OGRoot: snap.OGRoot, Reset: opts.Force}
	if opts.Format == "json" {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Initialized empty FGDB store in %s\n", dir)
	fmt.Fprintf(w, "  MG root: %s\n", ir.Head(snap.MGRoot))
	fmt.Fprintf(w, "  OG root: %s\n", ir.Head(snap.OGRoot))
	return nil
}
