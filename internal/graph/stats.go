package graph

import (
	"slices"

	"github.com/roach88/fgdb/internal/ir"
)

// Stats summarizes the size of both graphs.
type Stats struct {
	MGNodes   int `json:"mg_nodes"`
	MGEdges   int `json:"mg_edges"`
	OGNodes   int `json:"og_nodes"`
	OGEdges   int `json:"og_edges"`
	Functions int `json:"functions"`
	Data      int `json:"data"`
	Produced  int `json:"produced"` // Data blocks that are execution outputs
}

// Stats counts nodes and edges of both graphs.
func (g *Graph) Stats() Stats {
	s := Stats{
		MGNodes:  len(g.snap.MGEdges) + 1,
		MGEdges:  len(g.snap.MGEdges),
		OGNodes:  len(g.snap.OGNodes),
		OGEdges:  len(g.snap.OGEdges),
		Produced: len(g.snap.OGEdges),
	}
	for _, n := range g.snap.Nodes {
		switch n.Kind {
		case ir.KindFunction:
			s.Functions++
		case ir.KindData:
			s.Data++
		}
	}
	return s
}

// Lineage returns every execution that contributed to id, ordered by
// commit sequence. A registered data block has an empty lineage.
func (g *Graph) Lineage(id string) []ir.ExecutionEdge {
	seen := make(map[string]bool)
	var out []ir.ExecutionEdge
	pending := []string{id}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		i, ok := g.produced[cur]
		if !ok {
			continue
		}
		e := g.snap.OGEdges[i]
		out = append(out, cloneExecution(e))
		pending = append(pending, e.Inputs...)
	}
	slices.SortFunc(out, func(a, b ir.ExecutionEdge) int {
		switch {
		case a.Order < b.Order:
			return -1
		case a.Order > b.Order:
			return 1
		}
		return 0
	})
	return out
}
