package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fgdb/internal/block"
	"github.com/roach88/fgdb/internal/config"
	"github.com/roach88/fgdb/internal/engine"
	"github.com/roach88/fgdb/internal/graph"
	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/operation"
	"github.com/roach88/fgdb/internal/store"
)

// session is the state shared by commands working on an existing store.
type session struct {
	dir    string
	store  *store.Store
	blocks *block.Store
	config config.Config
	logger *slog.Logger
}

// openSession loads the configuration and opens the store of opts.
// Fails with STORE_NOT_INITIALIZED when the store does not exist.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(opts.Store)
	if err != nil {
		return nil, fmt.Errorf("resolve store directory: %w", err)
	}
	st, err := store.OpenExisting(dir)
	if err != nil {
		return nil, err
	}
	st.SetLockOptions(lockOptions(cfg))
	logger.Debug("store opened", "dir", dir)

	return &session{
		dir:    dir,
		store:  st,
		blocks: block.NewStore(filepath.Join(dir, store.BlocksDir)),
		config: cfg,
		logger: logger,
	}, nil
}

func (s *session) Close() error {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// engine builds an execution engine over the session store.
func (s *session) engine(runIDs engine.RunIDGenerator, opts ...engine.EngineOption) *engine.Engine {
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	base := []engine.EngineOption{
		engine.WithConfig(s.config),
		engine.WithLogger(s.logger),
		engine.WithWorkDir(filepath.Join(s.dir, store.WorkDir)),
	}
	return engine.New(s.store, s.blocks, runIDs, append(base, opts...)...)
}

// graph loads the persisted snapshot.
func (s *session) graph(ctx context.Context) (*graph.Graph, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return graph.New(snap)
}

// resolve looks up a block by name or hash code.
func resolve(g *graph.Graph, ref string) (ir.BlockNode, error) {
	r, err := operation.ParseRef(ref)
	if err != nil {
		return ir.BlockNode{}, err
	}
	return operation.Resolve(g, r)
}

// newLogger configures logging based on the verbose flag.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// loadConfig reads --config, which must exist, or the optional fgdb.yaml
// of the store.
func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.Config != "" {
		return config.Load(opts.Config, true)
	}
	return config.Load(filepath.Join(opts.Store, store.ConfigFile), false)
}

func lockOptions(cfg config.Config) store.LockOptions {
	lo := store.DefaultLockOptions()
	lo.Timeout = cfg.LockTimeout
	return lo
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
