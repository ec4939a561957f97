package graph

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/fgdb/internal/ir"
)

// ErrInconsistent reports a snapshot or mutation that would break a graph
// invariant (dangling edge, second parent, reused output, cycle).
var ErrInconsistent = errors.New("inconsistent graph")

// Graph is an immutable view over a snapshot with lookup indexes.
type Graph struct {
	snap     ir.Snapshot
	index    map[string]int    // node id -> position in snap.Nodes
	parent   map[string]string // MG child -> parent
	og       map[string]bool   // OG membership
	produced map[string]int    // output id -> position in snap.OGEdges
}

// New validates snap and builds a Graph over a private copy of it.
func New(snap ir.Snapshot) (*Graph, error) {
	if err := Validate(snap); err != nil {
		return nil, err
	}
	return build(cloneSnapshot(snap)), nil
}

// Init builds the initial graph holding only the two root sentinels.
func Init(mgRoot, ogRoot ir.BlockNode) (*Graph, error) {
	return New(ir.Snapshot{
		Version: ir.SnapshotVersion,
		MGRoot:  mgRoot.ID,
		OGRoot:  ogRoot.ID,
		Nodes:   []ir.BlockNode{mgRoot, ogRoot},
		MGEdges: []ir.RegistrationEdge{},
		OGNodes: []string{ogRoot.ID},
		OGEdges: []ir.ExecutionEdge{},
	})
}

func build(snap ir.Snapshot) *Graph {
	g := &Graph{
		snap:     snap,
		index:    make(map[string]int, len(snap.Nodes)),
		parent:   make(map[string]string, len(snap.MGEdges)),
		og:       make(map[string]bool, len(snap.OGNodes)),
		produced: make(map[string]int, len(snap.OGEdges)),
	}
	for i, n := range snap.Nodes {
		g.index[n.ID] = i
	}
	for _, e := range snap.MGEdges {
		g.parent[e.Child] = e.Parent
	}
	for _, id := range snap.OGNodes {
		g.og[id] = true
	}
	for i, e := range snap.OGEdges {
		g.produced[e.Output] = i
	}
	return g
}

// Snapshot returns a deep copy of the underlying snapshot.
func (g *Graph) Snapshot() ir.Snapshot {
	return cloneSnapshot(g.snap)
}

// MGRoot returns the ID of the Management Graph root.
func (g *Graph) MGRoot() string { return g.snap.MGRoot }

// OGRoot returns the ID of the Operation Graph root.
func (g *Graph) OGRoot() string { return g.snap.OGRoot }

// LastSeq returns the highest committed sequence number.
func (g *Graph) LastSeq() int64 { return g.snap.LastSeq() }

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (ir.BlockNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return ir.BlockNode{}, false
	}
	return g.snap.Nodes[i], true
}

// InMG reports whether id is a Management Graph node.
func (g *Graph) InMG(id string) bool {
	if id == g.snap.MGRoot {
		return true
	}
	_, ok := g.parent[id]
	return ok
}

// InOG reports whether id is an Operation Graph node.
func (g *Graph) InOG(id string) bool {
	return g.og[id]
}

// Parent returns the MG parent of id.
func (g *Graph) Parent(id string) (string, bool) {
	p, ok := g.parent[id]
	return p, ok
}

// LastRegistered returns the most recently registered MG node, or the MG
// root when nothing has been registered. New blocks become its children.
func (g *Graph) LastRegistered() string {
	if len(g.snap.MGEdges) == 0 {
		return g.snap.MGRoot
	}
	last := g.snap.MGEdges[0]
	for _, e := range g.snap.MGEdges[1:] {
		if e.Order > last.Order {
			last = e
		}
	}
	return last.Child
}

// Nodes returns all nodes in commit order.
func (g *Graph) Nodes() []ir.BlockNode {
	return slices.Clone(g.snap.Nodes)
}

// Blocks returns the registered blocks of the given kind in commit order.
func (g *Graph) Blocks(kind ir.Kind) []ir.BlockNode {
	var out []ir.BlockNode
	for _, n := range g.snap.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// FindByName returns every MG block whose name matches, in commit order.
// Names are compared after NFC normalization. Roots never match.
func (g *Graph) FindByName(name string) []ir.BlockNode {
	name = norm.NFC.String(name)
	var out []ir.BlockNode
	for _, n := range g.snap.Nodes {
		if n.Kind == ir.KindRoot || !g.InMG(n.ID) {
			continue
		}
		if norm.NFC.String(n.Name) == name {
			out = append(out, n)
		}
	}
	return out
}

// MGEdges returns the registration edges in commit order.
func (g *Graph) MGEdges() []ir.RegistrationEdge {
	return slices.Clone(g.snap.MGEdges)
}

// OGEdges returns the execution edges in commit order.
func (g *Graph) OGEdges() []ir.ExecutionEdge {
	out := make([]ir.ExecutionEdge, len(g.snap.OGEdges))
	for i, e := range g.snap.OGEdges {
		out[i] = cloneExecution(e)
	}
	return out
}

// ProducedBy returns the execution that produced id, if any.
// Registered data blocks have no producing execution.
func (g *Graph) ProducedBy(id string) (ir.ExecutionEdge, bool) {
	i, ok := g.produced[id]
	if !ok {
		return ir.ExecutionEdge{}, false
	}
	return cloneExecution(g.snap.OGEdges[i]), true
}

// Consumers returns the executions that read id, in commit order.
func (g *Graph) Consumers(id string) []ir.ExecutionEdge {
	var out []ir.ExecutionEdge
	for _, e := range g.snap.OGEdges {
		if slices.Contains(e.Inputs, id) {
			out = append(out, cloneExecution(e))
		}
	}
	return out
}

// WithBlock returns a new graph with node registered as a child of the last
// registered MG node. Data blocks also join the OG as independent variables.
// OG edges are execution records only, so attachment to the OG root is
// membership in OGNodes rather than an edge.
func (g *Graph) WithBlock(node ir.BlockNode) (*Graph, error) {
	if err := g.checkNewNode(node); err != nil {
		return nil, err
	}
	if node.Kind != ir.KindFunction && node.Kind != ir.KindData {
		return nil, fmt.Errorf("%w: cannot register block of kind %q", ErrInconsistent, node.Kind)
	}

	next := cloneSnapshot(g.snap)
	next.Nodes = append(next.Nodes, node)
	next.MGEdges = append(next.MGEdges, ir.RegistrationEdge{
		Parent: g.LastRegistered(),
		Child:  node.ID,
		Order:  node.Seq,
	})
	if node.Kind == ir.KindData {
		next.OGNodes = append(next.OGNodes, node.ID)
	}
	return build(next), nil
}

// WithExecution returns a new graph recording edge, whose output is the
// freshly minted data block output. The output is registered in the MG like
// any other block and joins the OG as the target of edge.
func (g *Graph) WithExecution(edge ir.ExecutionEdge, output ir.BlockNode) (*Graph, error) {
	if err := g.checkNewNode(output); err != nil {
		return nil, err
	}
	if output.Kind != ir.KindData {
		return nil, ir.NewTypeMismatchError(output.ID, ir.KindData, output.Kind)
	}
	if edge.Output != output.ID {
		return nil, fmt.Errorf("%w: edge output %s does not match node %s", ErrInconsistent, edge.Output, output.ID)
	}
	if edge.Order != output.Seq {
		return nil, fmt.Errorf("%w: edge order %d does not match node seq %d", ErrInconsistent, edge.Order, output.Seq)
	}

	fn, ok := g.Node(edge.Function)
	if !ok || !g.InMG(edge.Function) {
		return nil, ir.NewUnknownBlockError(edge.Function)
	}
	if fn.Kind != ir.KindFunction {
		return nil, ir.NewTypeMismatchError(edge.Function, ir.KindFunction, fn.Kind)
	}
	if len(edge.Inputs) == 0 {
		return nil, fmt.Errorf("%w: execution without inputs", ErrInconsistent)
	}
	for _, id := range edge.Inputs {
		in, ok := g.Node(id)
		if !ok || !g.InMG(id) {
			return nil, ir.NewUnknownBlockError(id)
		}
		if in.Kind != ir.KindData {
			return nil, ir.NewTypeMismatchError(id, ir.KindData, in.Kind)
		}
	}

	next := cloneSnapshot(g.snap)
	next.Nodes = append(next.Nodes, output)
	next.MGEdges = append(next.MGEdges, ir.RegistrationEdge{
		Parent: g.LastRegistered(),
		Child:  output.ID,
		Order:  output.Seq,
	})
	next.OGNodes = append(next.OGNodes, output.ID)
	next.OGEdges = append(next.OGEdges, cloneExecution(edge))
	return build(next), nil
}

// checkNewNode verifies that node can be appended to the arena.
func (g *Graph) checkNewNode(node ir.BlockNode) error {
	if !ir.IsHashCode(node.ID) {
		return fmt.Errorf("%w: invalid node id %q", ErrInconsistent, node.ID)
	}
	if _, exists := g.index[node.ID]; exists {
		return fmt.Errorf("%w: node %s already exists", ErrInconsistent, ir.Head(node.ID))
	}
	if node.Seq <= g.LastSeq() {
		return fmt.Errorf("%w: seq %d is not after last committed seq %d", ErrInconsistent, node.Seq, g.LastSeq())
	}
	return nil
}

func cloneSnapshot(s ir.Snapshot) ir.Snapshot {
	out := s
	out.Nodes = slices.Clone(s.Nodes)
	out.MGEdges = slices.Clone(s.MGEdges)
	out.OGNodes = slices.Clone(s.OGNodes)
	out.OGEdges = make([]ir.ExecutionEdge, len(s.OGEdges))
	for i, e := range s.OGEdges {
		out.OGEdges[i] = cloneExecution(e)
	}
	if out.Nodes == nil {
		out.Nodes = []ir.BlockNode{}
	}
	if out.MGEdges == nil {
		out.MGEdges = []ir.RegistrationEdge{}
	}
	if out.OGNodes == nil {
		out.OGNodes = []string{}
	}
	return out
}

func cloneExecution(e ir.ExecutionEdge) ir.ExecutionEdge {
	e.Inputs = slices.Clone(e.Inputs)
	return e
}
