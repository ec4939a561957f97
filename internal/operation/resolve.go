package operation

import (
	"github.com/roach88/fgdb/internal/graph"
	"github.com/roach88/fgdb/internal/ir"
)

// Resolve maps ref to a registered MG block.
//
// A hash ref must name an MG node. A name ref must match exactly one MG node:
// zero matches fail with UNKNOWN_BLOCK and several fail with AMBIGUOUS_NAME
// listing the candidate hash codes. Roots are never resolvable.
func Resolve(g *graph.Graph, ref Ref) (ir.BlockNode, error) {
	switch ref.Kind {
	case RefHash:
		n, ok := g.Node(ref.Value)
		if !ok || n.Kind == ir.KindRoot || !g.InMG(n.ID) {
			return ir.BlockNode{}, ir.NewUnknownBlockError(ref.Value)
		}
		return n, nil
	default:
		matches := g.FindByName(ref.Value)
		switch len(matches) {
		case 0:
			return ir.BlockNode{}, ir.NewUnknownBlockError(ref.Value)
		case 1:
			return matches[0], nil
		default:
			candidates := make([]string, len(matches))
			for i, m := range matches {
				candidates[i] = m.ID
			}
			return ir.BlockNode{}, ir.NewAmbiguousNameError(ref.Value, candidates)
		}
	}
}

// ResolveKind resolves ref and requires the block to be of kind want.
func ResolveKind(g *graph.Graph, ref Ref, want ir.Kind) (ir.BlockNode, error) {
	n, err := Resolve(g, ref)
	if err != nil {
		return ir.BlockNode{}, err
	}
	if n.Kind != want {
		return ir.BlockNode{}, ir.NewTypeMismatchError(ref.Value, want, n.Kind)
	}
	return n, nil
}

// Resolved is an expression whose references are bound to blocks.
type Resolved struct {
	Expr     *Expression
	Function ir.BlockNode
	Inputs   []ir.BlockNode
}

// InputIDs returns the hash codes of the resolved inputs, in order.
func (r *Resolved) InputIDs() []string {
	ids := make([]string, len(r.Inputs))
	for i, n := range r.Inputs {
		ids[i] = n.ID
	}
	return ids
}

// ResolveExpression binds the function and every input of expr.
// The function must be a function block and each input a data block.
func ResolveExpression(g *graph.Graph, expr *Expression) (*Resolved, error) {
	fn, err := ResolveKind(g, expr.Function, ir.KindFunction)
	if err != nil {
		return nil, err
	}
	inputs := make([]ir.BlockNode, len(expr.Inputs))
	for i, ref := range expr.Inputs {
		if inputs[i], err = ResolveKind(g, ref, ir.KindData); err != nil {
			return nil, err
		}
	}
	return &Resolved{Expr: expr, Function: fn, Inputs: inputs}, nil
}
