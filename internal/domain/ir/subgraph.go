package ir

// Subgraph is one weakly-connected piece of an IR Graph produced by the
// splitter (internal/domain/split), destined to run as a single shell
// script on a single worker. It embeds a Graph so callers use the same
// node/edge API on a subgraph as on the full IR.
type Subgraph struct {
	*Graph

	ID string

	// Merger marks a subgraph whose entry node serializes more than one
	// upstream input, i.e. it was cut at a merger boundary rather than a
	// source/sink boundary (spec.md §4.2).
	Merger bool
}

// NewSubgraph returns an empty subgraph sharing gen with its parent Graph.
func NewSubgraph(id string, gen *FileIDGen) *Subgraph {
	return &Subgraph{Graph: NewGraph(gen), ID: id}
}

// IsEmpty reports whether the subgraph has no nodes.
func (s *Subgraph) IsEmpty() bool {
	return len(s.Nodes()) == 0
}
