package ir

import (
	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// Graph is the arena-indexed dataflow model: nodes and edges are looked up
// by string id rather than held by pointer, so a Graph can be freely copied
// and partitioned (see internal/domain/split) without aliasing concerns.
type Graph struct {
	gen *FileIDGen

	nodes   map[string]*Node
	edges   map[string]*Edge
	nodeIDs []string // insertion order, for deterministic BFS in split
	edgeIDs []string
}

// NewGraph returns an empty graph sharing gen for FileID allocation. Passing
// the same generator to every Subgraph split out of this Graph keeps FileIDs
// globally unique across the whole IR, matching ir_helper.py's single
// process-wide FileIdGen.
func NewGraph(gen *FileIDGen) *Graph {
	if gen == nil {
		gen = NewFileIDGen()
	}
	return &Graph{
		gen:   gen,
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
	}
}

// Gen returns the graph's FileID generator.
func (g *Graph) Gen() *FileIDGen { return g.gen }

// AddNode registers n, replacing any prior node with the same id.
func (g *Graph) AddNode(n *Node) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.nodeIDs = append(g.nodeIDs, n.ID)
	}
	g.nodes[n.ID] = n
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeIDs))
	for _, id := range g.nodeIDs {
		out = append(out, g.nodes[id])
	}
	return out
}

// AddEdge registers e, replacing any prior edge with the same id.
func (g *Graph) AddEdge(e *Edge) {
	if _, exists := g.edges[e.ID]; !exists {
		g.edgeIDs = append(g.edgeIDs, e.ID)
	}
	g.edges[e.ID] = e
}

// Edge looks up an edge by id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeIDs))
	for _, id := range g.edgeIDs {
		out = append(out, g.edges[id])
	}
	return out
}

// AddFromEdge wires edge e as an output of node nodeID: e.From = nodeID, and
// e's id is appended to the node's Outputs. Mirrors ir_helper.py's
// add_from_edge, which is called once per producer when a node is first
// visited by the splitter.
func (g *Graph) AddFromEdge(nodeID string, e *Edge) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return dserrors.NotFound("node", nodeID)
	}
	from := nodeID
	e.From = &from
	g.AddEdge(e)
	n.Outputs = append(n.Outputs, e.ID)
	return nil
}

// AddToEdge wires edge e as an input of node nodeID: e.To = nodeID, and e's
// id is appended to the node's Inputs. Mirrors ir_helper.py's add_to_edge.
func (g *Graph) AddToEdge(nodeID string, e *Edge) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return dserrors.NotFound("node", nodeID)
	}
	to := nodeID
	e.To = &to
	g.AddEdge(e)
	n.Inputs = append(n.Inputs, e.ID)
	return nil
}

// SetEdgeTo repoints edgeID's consuming end to nodeID without touching the
// producing end, used when the rewriter splices a remote-read node between
// an edge and its original consumer.
func (g *Graph) SetEdgeTo(edgeID, nodeID string) error {
	e, ok := g.edges[edgeID]
	if !ok {
		return dserrors.NotFound("edge", edgeID)
	}
	if e.To != nil {
		if consumer, ok := g.nodes[*e.To]; ok {
			consumer.Inputs = removeString(consumer.Inputs, edgeID)
		}
	}
	return g.AddToEdge(nodeID, e)
}

// ReplaceEdge swaps the edge at position in node nodeID's Inputs or Outputs
// (whichever holds oldEdgeID) for newEdge, without disturbing the other end
// of the old edge. Mirrors ir_helper.py's replace_edge, used by the rewriter
// to splice an ephemeral edge in place of a cross-host edge.
func (g *Graph) ReplaceEdge(nodeID, oldEdgeID string, newEdge *Edge) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return dserrors.NotFound("node", nodeID)
	}
	g.AddEdge(newEdge)
	replaced := false
	for i, id := range n.Outputs {
		if id == oldEdgeID {
			n.Outputs[i] = newEdge.ID
			from := nodeID
			newEdge.From = &from
			replaced = true
		}
	}
	for i, id := range n.Inputs {
		if id == oldEdgeID {
			n.Inputs[i] = newEdge.ID
			to := nodeID
			newEdge.To = &to
			replaced = true
		}
	}
	if !replaced {
		return dserrors.InvalidInput("oldEdgeID", "not attached to node "+nodeID)
	}
	g.forgetEdge(oldEdgeID)
	return nil
}

func (g *Graph) forgetEdge(id string) {
	delete(g.edges, id)
	out := g.edgeIDs[:0]
	for _, eid := range g.edgeIDs {
		if eid != id {
			out = append(out, eid)
		}
	}
	g.edgeIDs = out
}

// ReplaceEdgeEverywhere swaps oldEdgeID for newEdge wherever it appears in
// the graph, on both the producing and consuming node if both are present.
// Mirrors ir_helper.py's replace_edge, which rewires an edge without the
// caller needing to know which node(s) reference it — used by the rewriter
// when splicing a remote pipe into a subgraph it did not itself produce via
// split (the edge's original producer/consumer may be any node in it).
func (g *Graph) ReplaceEdgeEverywhere(oldEdgeID string, newEdge *Edge) error {
	old, ok := g.edges[oldEdgeID]
	if !ok {
		return dserrors.NotFound("edge", oldEdgeID)
	}
	replaced := false
	if old.From != nil {
		if err := g.ReplaceEdge(*old.From, oldEdgeID, newEdge); err == nil {
			replaced = true
		}
	}
	if old.To != nil {
		if err := g.ReplaceEdge(*old.To, oldEdgeID, newEdge); err == nil {
			replaced = true
		}
	}
	if !replaced {
		g.forgetEdge(oldEdgeID)
		g.AddEdge(newEdge)
	}
	return nil
}

// NodeInputFIDs returns the FileIDs of n's input edges, in Inputs order.
func (g *Graph) NodeInputFIDs(n *Node) []FileID {
	out := make([]FileID, 0, len(n.Inputs))
	for _, id := range n.Inputs {
		if e, ok := g.edges[id]; ok {
			out = append(out, e.FID)
		}
	}
	return out
}

// NodeOutputFIDs returns the FileIDs of n's output edges, in Outputs order.
func (g *Graph) NodeOutputFIDs(n *Node) []FileID {
	out := make([]FileID, 0, len(n.Outputs))
	for _, id := range n.Outputs {
		if e, ok := g.edges[id]; ok {
			out = append(out, e.FID)
		}
	}
	return out
}

// SourceNodes returns nodes with no predecessor in g (no input edge whose
// producer is a node of g), in insertion order.
func (g *Graph) SourceNodes() []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		source := true
		for _, id := range n.Inputs {
			if e, ok := g.edges[id]; ok && e.From != nil {
				if _, ok := g.nodes[*e.From]; ok {
					source = false
					break
				}
			}
		}
		if source {
			out = append(out, n)
		}
	}
	return out
}

// SinkNodes returns nodes with no successor in g (no output edge whose
// consumer is a node of g), in insertion order.
func (g *Graph) SinkNodes() []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		sink := true
		for _, id := range n.Outputs {
			if e, ok := g.edges[id]; ok && e.To != nil {
				if _, ok := g.nodes[*e.To]; ok {
					sink = false
					break
				}
			}
		}
		if sink {
			out = append(out, n)
		}
	}
	return out
}

// NextNodes returns the distinct nodes directly downstream of nodeID,
// i.e. the consumers of nodeID's output edges. Mirrors ir_helper.py's
// get_next_nodes.
func (g *Graph) NextNodes(nodeID string) []string {
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, eid := range n.Outputs {
		e, ok := g.edges[eid]
		if !ok || e.To == nil {
			continue
		}
		if !seen[*e.To] {
			seen[*e.To] = true
			out = append(out, *e.To)
		}
	}
	return out
}

// AllFIDs returns every edge's FileID in insertion order.
func (g *Graph) AllFIDs() []FileID {
	out := make([]FileID, 0, len(g.edgeIDs))
	for _, id := range g.edgeIDs {
		out = append(out, g.edges[id].FID)
	}
	return out
}

// AllInputFIDs returns the FileIDs of every edge with no producer node, i.e.
// the set the splitter treats as "already satisfiable" before it has
// visited the producing node. Mirrors ir_helper.py's all_input_fids.
func (g *Graph) AllInputFIDs() []FileID {
	var out []FileID
	for _, id := range g.edgeIDs {
		e := g.edges[id]
		if e.From == nil {
			out = append(out, e.FID)
		}
	}
	return out
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
