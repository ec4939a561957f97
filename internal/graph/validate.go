package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/fgdb/internal/ir"
)

// Validate checks that snap is internally consistent:
//   - node IDs are unique hash codes and the two roots exist
//   - the MG is a tree rooted at MGRoot that contains every non-root node
//   - the OG contains its root and every data block, and nothing else
//   - no edge references a node absent from the snapshot
//   - every execution output is written once and the OG is acyclic
//
// Violations wrap ErrInconsistent.
func Validate(snap ir.Snapshot) error {
	nodes := make(map[string]ir.BlockNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if !ir.IsHashCode(n.ID) {
			return inconsistent("node id %q is not a hash code", n.ID)
		}
		if _, dup := nodes[n.ID]; dup {
			return inconsistent("duplicate node %s", ir.Head(n.ID))
		}
		if _, err := ir.ParseKind(string(n.Kind)); err != nil {
			return inconsistent("node %s: %v", ir.Head(n.ID), err)
		}
		nodes[n.ID] = n
	}

	roots := 0
	for _, n := range snap.Nodes {
		if n.Kind == ir.KindRoot {
			roots++
		}
	}
	for _, id := range []string{snap.MGRoot, snap.OGRoot} {
		n, ok := nodes[id]
		if !ok {
			return inconsistent("root %s missing from nodes", ir.Head(id))
		}
		if n.Kind != ir.KindRoot {
			return inconsistent("root %s has kind %s", ir.Head(id), n.Kind)
		}
	}
	if snap.MGRoot == snap.OGRoot || roots != 2 {
		return inconsistent("snapshot must hold exactly two distinct roots, found %d", roots)
	}

	if err := validateMG(snap, nodes); err != nil {
		return err
	}
	return validateOG(snap, nodes)
}

func validateMG(snap ir.Snapshot, nodes map[string]ir.BlockNode) error {
	// order[id] is the registration order of id; the root registers first.
	order := map[string]int64{snap.MGRoot: 0}
	var lastOrder int64
	for _, e := range snap.MGEdges {
		child, ok := nodes[e.Child]
		if !ok {
			return inconsistent("registration edge references missing child %s", ir.Head(e.Child))
		}
		if _, ok := nodes[e.Parent]; !ok {
			return inconsistent("registration edge references missing parent %s", ir.Head(e.Parent))
		}
		if child.Kind == ir.KindRoot {
			return inconsistent("root %s cannot have a parent", ir.Head(e.Child))
		}
		if _, dup := order[e.Child]; dup {
			return inconsistent("block %s has more than one parent", ir.Head(e.Child))
		}
		parentOrder, ok := order[e.Parent]
		if !ok {
			return inconsistent("parent %s of %s is not registered before it", ir.Head(e.Parent), ir.Head(e.Child))
		}
		if e.Order <= lastOrder || e.Order <= parentOrder {
			return inconsistent("registration order %d of %s is not increasing", e.Order, ir.Head(e.Child))
		}
		if e.Order != child.Seq {
			return inconsistent("registration order %d of %s does not match seq %d", e.Order, ir.Head(e.Child), child.Seq)
		}
		order[e.Child] = e.Order
		lastOrder = e.Order
	}

	for id, n := range nodes {
		if n.Kind == ir.KindRoot {
			continue
		}
		if _, ok := order[id]; !ok {
			return inconsistent("block %s is not registered in the MG", ir.Head(id))
		}
	}
	return nil
}

func validateOG(snap ir.Snapshot, nodes map[string]ir.BlockNode) error {
	members := make(map[string]bool, len(snap.OGNodes))
	for _, id := range snap.OGNodes {
		n, ok := nodes[id]
		if !ok {
			return inconsistent("OG references missing node %s", ir.Head(id))
		}
		if members[id] {
			return inconsistent("OG lists node %s twice", ir.Head(id))
		}
		if n.Kind == ir.KindFunction || (n.Kind == ir.KindRoot && id != snap.OGRoot) {
			return inconsistent("OG node %s has kind %s", ir.Head(id), n.Kind)
		}
		members[id] = true
	}
	if !members[snap.OGRoot] {
		return inconsistent("OG root %s is not an OG node", ir.Head(snap.OGRoot))
	}
	for id, n := range nodes {
		if n.Kind == ir.KindData && !members[id] {
			return inconsistent("data block %s is not an OG node", ir.Head(id))
		}
	}

	outputs := make(map[string]bool, len(snap.OGEdges))
	runs := make(map[string]bool, len(snap.OGEdges))
	adjacency := make(map[string][]string)
	var lastOrder int64
	for _, e := range snap.OGEdges {
		fn, ok := nodes[e.Function]
		if !ok {
			return inconsistent("execution %s references missing function %s", e.RunID, ir.Head(e.Function))
		}
		if fn.Kind != ir.KindFunction {
			return inconsistent("execution %s function %s has kind %s", e.RunID, ir.Head(e.Function), fn.Kind)
		}
		out, ok := nodes[e.Output]
		if !ok || !members[e.Output] {
			return inconsistent("execution %s references missing output %s", e.RunID, ir.Head(e.Output))
		}
		if out.Kind != ir.KindData {
			return inconsistent("execution %s output %s has kind %s", e.RunID, ir.Head(e.Output), out.Kind)
		}
		if outputs[e.Output] {
			return inconsistent("block %s is the output of more than one execution", ir.Head(e.Output))
		}
		if runs[e.RunID] {
			return inconsistent("run id %s recorded twice", e.RunID)
		}
		if e.Order <= lastOrder || e.Order != out.Seq {
			return inconsistent("execution %s order %d is not increasing or does not match its output", e.RunID, e.Order)
		}
		if len(e.Inputs) == 0 {
			return inconsistent("execution %s has no inputs", e.RunID)
		}
		for _, in := range e.Inputs {
			n, ok := nodes[in]
			if !ok || !members[in] || n.Kind != ir.KindData {
				return inconsistent("execution %s references missing input %s", e.RunID, ir.Head(in))
			}
			if n.Seq >= out.Seq {
				return inconsistent("execution %s input %s was not committed before its output", e.RunID, ir.Head(in))
			}
			adjacency[in] = append(adjacency[in], e.Output)
		}
		outputs[e.Output] = true
		runs[e.RunID] = true
		lastOrder = e.Order
	}

	if cycles := findCycles(adjacency); len(cycles) > 0 {
		heads := make([]string, len(cycles[0]))
		for i, id := range cycles[0] {
			heads[i] = ir.Head(id)
		}
		return inconsistent("OG contains a cycle: %s", strings.Join(heads, " → "))
	}
	return nil
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}

// sortedKeys returns the keys of adjacency in lexical order so cycle
// reports are deterministic.
func sortedKeys(adjacency map[string][]string) []string {
	keys := make([]string, 0, len(adjacency))
	for k := range adjacency {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
