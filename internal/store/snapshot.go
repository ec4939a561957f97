package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fgdb/internal/graph"
	"github.com/roach88/fgdb/internal/ir"
)

// Initialized reports whether a snapshot has been persisted.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshot_meta`).Scan(&count); err != nil {
		return false, fmt.Errorf("check snapshot: %w", err)
	}
	return count > 0, nil
}

// Init persists a fresh snapshot holding only the MG and OG roots, created
// at createdAt. Fails with ALREADY_INITIALIZED when a snapshot exists,
// unless force is set, in which case the existing snapshot is replaced.
func (s *Store) Init(ctx context.Context, createdAt time.Time, force bool) (ir.Snapshot, error) {
	exists, err := s.Initialized(ctx)
	if err != nil {
		return ir.Snapshot{}, err
	}
	if exists && !force {
		e := ir.NewError(ir.ErrCodeAlreadyInitialized, "store already holds a snapshot, use --force to reset it")
		e.Ref = s.Dir()
		return ir.Snapshot{}, e
	}

	mg, err := rootNode(ir.MGRootName, createdAt)
	if err != nil {
		return ir.Snapshot{}, err
	}
	og, err := rootNode(ir.OGRootName, createdAt)
	if err != nil {
		return ir.Snapshot{}, err
	}
	g, err := graph.Init(mg, og)
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("init graph: %w", err)
	}

	snap := g.Snapshot()
	if err := s.Save(ctx, snap); err != nil {
		return ir.Snapshot{}, err
	}
	return snap, nil
}

func rootNode(name string, createdAt time.Time) (ir.BlockNode, error) {
	id, err := ir.RootID(name, createdAt)
	if err != nil {
		return ir.BlockNode{}, err
	}
	return ir.BlockNode{ID: id, Kind: ir.KindRoot, Name: name, CreatedAt: createdAt.UTC()}, nil
}

// Load reads the persisted snapshot.
//
// Fails with STORE_NOT_INITIALIZED when no snapshot exists and with
// INCOMPATIBLE_SNAPSHOT_VERSION when it was written in another format.
func (s *Store) Load(ctx context.Context) (ir.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("load snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	var snap ir.Snapshot
	err = tx.QueryRowContext(ctx, `
		SELECT format_version, mg_root, og_root FROM snapshot_meta WHERE id = 1
	`).Scan(&snap.Version, &snap.MGRoot, &snap.OGRoot)
	if errors.Is(err, sql.ErrNoRows) {
		e := ir.NewError(ir.ErrCodeStoreNotInitialized, "no snapshot found, run init first")
		e.Ref = s.Dir()
		return ir.Snapshot{}, e
	}
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("load snapshot: read meta: %w", err)
	}
	if snap.Version != ir.SnapshotVersion {
		return ir.Snapshot{}, ir.NewIncompatibleVersionError(snap.Version, ir.SnapshotVersion)
	}

	if snap.Nodes, err = readNodes(ctx, tx); err != nil {
		return ir.Snapshot{}, err
	}
	if snap.MGEdges, err = readRegistrationEdges(ctx, tx); err != nil {
		return ir.Snapshot{}, err
	}
	if snap.OGNodes, err = readOGNodes(ctx, tx); err != nil {
		return ir.Snapshot{}, err
	}
	if snap.OGEdges, err = readExecutionEdges(ctx, tx); err != nil {
		return ir.Snapshot{}, err
	}

	if err := graph.Validate(snap); err != nil {
		return ir.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

func readNodes(ctx context.Context, tx *sql.Tx) ([]ir.BlockNode, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, kind, name, created_at, source_path, digest, seq
		FROM nodes
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}
	defer rows.Close()

	nodes := []ir.BlockNode{}
	for rows.Next() {
		var n ir.BlockNode
		var kind, createdAt string
		if err := rows.Scan(&n.ID, &kind, &n.Name, &createdAt, &n.SourcePath, &n.Digest, &n.Seq); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if n.Kind, err = ir.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if n.CreatedAt, err = ir.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

func readRegistrationEdges(ctx context.Context, tx *sql.Tx) ([]ir.RegistrationEdge, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT parent, child, ord
		FROM registration_edges
		ORDER BY ord ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read registration edges: %w", err)
	}
	defer rows.Close()

	edges := []ir.RegistrationEdge{}
	for rows.Next() {
		var e ir.RegistrationEdge
		if err := rows.Scan(&e.Parent, &e.Child, &e.Order); err != nil {
			return nil, fmt.Errorf("scan registration edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registration edges: %w", err)
	}
	return edges, nil
}

func readOGNodes(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM og_nodes ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("read og nodes: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan og node: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate og nodes: %w", err)
	}
	return ids, nil
}

func readExecutionEdges(ctx context.Context, tx *sql.Tx) ([]ir.ExecutionEdge, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT output, run_id, function, executed_at, ord
		FROM execution_edges
		ORDER BY ord ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read execution edges: %w", err)
	}

	edges := []ir.ExecutionEdge{}
	for rows.Next() {
		var e ir.ExecutionEdge
		var executedAt string
		if err := rows.Scan(&e.Output, &e.RunID, &e.Function, &executedAt, &e.Order); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan execution edge: %w", err)
		}
		if e.ExecutedAt, err = ir.ParseTime(executedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("execution %s: %w", e.RunID, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate execution edges: %w", err)
	}
	// Inputs are read after the edge cursor is closed.
	rows.Close()

	for i := range edges {
		inputs, err := readExecutionInputs(ctx, tx, edges[i].Output)
		if err != nil {
			return nil, err
		}
		edges[i].Inputs = inputs
	}
	return edges, nil
}

func readExecutionInputs(ctx context.Context, tx *sql.Tx, output string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT input FROM execution_inputs
		WHERE output = ?
		ORDER BY position ASC
	`, output)
	if err != nil {
		return nil, fmt.Errorf("read execution inputs: %w", err)
	}
	defer rows.Close()

	var inputs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan execution input: %w", err)
		}
		inputs = append(inputs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution inputs: %w", err)
	}
	return inputs, nil
}

// Save validates snap and replaces the persisted snapshot with it in a
// single transaction. On any error the previous snapshot is kept.
func (s *Store) Save(ctx context.Context, snap ir.Snapshot) error {
	if snap.Version != ir.SnapshotVersion {
		return ir.NewIncompatibleVersionError(snap.Version, ir.SnapshotVersion)
	}
	if err := graph.Validate(snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, table := range []string{
		"snapshot_meta",
		"execution_inputs",
		"execution_edges",
		"og_nodes",
		"registration_edges",
		"nodes",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("save snapshot: clear %s: %w", table, err)
		}
	}

	for i, n := range snap.Nodes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (id, position, kind, name, created_at, source_path, digest, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, n.ID, i, string(n.Kind), n.Name, ir.FormatTime(n.CreatedAt), n.SourcePath, n.Digest, n.Seq)
		if err != nil {
			return fmt.Errorf("save snapshot: insert node %s: %w", ir.Head(n.ID), err)
		}
	}

	for _, e := range snap.MGEdges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO registration_edges (child, parent, ord) VALUES (?, ?, ?)
		`, e.Child, e.Parent, e.Order)
		if err != nil {
			return fmt.Errorf("save snapshot: insert registration edge: %w", err)
		}
	}

	for i, id := range snap.OGNodes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO og_nodes (id, position) VALUES (?, ?)`, id, i); err != nil {
			return fmt.Errorf("save snapshot: insert og node: %w", err)
		}
	}

	for _, e := range snap.OGEdges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO execution_edges (output, run_id, function, executed_at, ord)
			VALUES (?, ?, ?, ?, ?)
		`, e.Output, e.RunID, e.Function, ir.FormatTime(e.ExecutedAt), e.Order)
		if err != nil {
			return fmt.Errorf("save snapshot: insert execution %s: %w", e.RunID, err)
		}
		for pos, in := range e.Inputs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO execution_inputs (output, position, input) VALUES (?, ?, ?)
			`, e.Output, pos, in)
			if err != nil {
				return fmt.Errorf("save snapshot: insert execution input: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, format_version, mg_root, og_root, engine_version)
		VALUES (1, ?, ?, ?, ?)
	`, snap.Version, snap.MGRoot, snap.OGRoot, ir.EngineVersion)
	if err != nil {
		return fmt.Errorf("save snapshot: insert meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}
