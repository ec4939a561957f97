package store

import (
	"context"

	"github.com/roach88/fgdb/internal/ir"
)

// Export renders the persisted snapshot as canonical JSON.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ExportSnapshot(snap)
}

// ExportSnapshot renders snap as canonical JSON (RFC 8785). The output is
// byte-identical for equal snapshots, so it serves as a golden format.
func ExportSnapshot(snap ir.Snapshot) ([]byte, error) {
	nodes := make([]any, len(snap.Nodes))
	for i, n := range snap.Nodes {
		nodes[i] = map[string]any{
			"id":          n.ID,
			"kind":        string(n.Kind),
			"name":        n.Name,
			"created_at":  ir.FormatTime(n.CreatedAt),
			"source_path": n.SourcePath,
			"digest":      n.Digest,
			"seq":         n.Seq,
		}
	}

	mgEdges := make([]any, len(snap.MGEdges))
	for i, e := range snap.MGEdges {
		mgEdges[i] = map[string]any{
			"parent": e.Parent,
			"child":  e.Child,
			"order":  e.Order,
		}
	}

	ogNodes := make([]any, len(snap.OGNodes))
	for i, id := range snap.OGNodes {
		ogNodes[i] = id
	}

	ogEdges := make([]any, len(snap.OGEdges))
	for i, e := range snap.OGEdges {
		inputs := make([]any, len(e.Inputs))
		for j, in := range e.Inputs {
			inputs[j] = in
		}
		ogEdges[i] = map[string]any{
			"run_id":      e.RunID,
			"inputs":      inputs,
			"function":    e.Function,
			"output":      e.Output,
			"executed_at": ir.FormatTime(e.ExecutedAt),
			"order":       e.Order,
		}
	}

	return ir.MarshalCanonical(map[string]any{
		"format_version": snap.Version,
		"mg_root":        snap.MGRoot,
		"og_root":        snap.OGRoot,
		"nodes":          nodes,
		"mg_edges":       mgEdges,
		"og_nodes":       ogNodes,
		"og_edges":       ogEdges,
	})
}
