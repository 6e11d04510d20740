// Package split partitions a single-host intermediate-representation graph
// into subgraphs that can each run as one shell script on one worker.
package split

import (
	"fmt"

	"github.com/dspash/dspash-go/internal/domain/ir"
)

type queueItem struct {
	nodeID string
	sub    *ir.Subgraph
}

// Split partitions graph into subgraphs connected by ephemeral pipes,
// following the BFS boundary rules of the original dspash splitter: a node
// is deferred until every one of its input edges has been produced by an
// already-visited node; a node with more than one input starts a fresh
// subgraph if the current one already has a source node (a "merger" cut);
// and a subgraph is closed whenever its last node doesn't have exactly one
// input and exactly one successor that isn't already fed by some other
// subgraph.
//
// Subgraphs are returned in cut order. edgeFifo maps an input edge id to
// every subgraph that consumed it as an input — the rewriter uses it to
// find which already-placed subgraph owns the consuming end of an edge
// that turns out to cross a host boundary.
func Split(graph *ir.Graph) (subgraphs []*ir.Subgraph, edgeFifo map[string][]*ir.Subgraph) {
	gen := graph.Gen()
	edgeFifo = make(map[string][]*ir.Subgraph)

	visitedEdges := make(map[string]bool)
	for _, fid := range graph.AllInputFIDs() {
		visitedEdges[fid.Ident] = true
	}
	visitedNodes := make(map[string]bool)

	subgraphCounter := 0
	newSubgraph := func() *ir.Subgraph {
		subgraphCounter++
		return ir.NewSubgraph(fmt.Sprintf("sg%d", subgraphCounter-1), gen)
	}

	appended := make(map[*ir.Subgraph]bool)
	appendGraph := func(sg *ir.Subgraph) {
		if !appended[sg] {
			appended[sg] = true
			subgraphs = append(subgraphs, sg)
		}
	}

	var queue []queueItem
	for _, n := range graph.SourceNodes() {
		queue = append(queue, queueItem{nodeID: n.ID, sub: newSubgraph()})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		oldNodeID, sub := item.nodeID, item.sub

		node, ok := graph.Node(oldNodeID)
		if !ok {
			continue
		}
		inputFIDs := graph.NodeInputFIDs(node)
		outputFIDs := graph.NodeOutputFIDs(node)

		ready := true
		for _, fid := range inputFIDs {
			if !visitedEdges[fid.Ident] {
				ready = false
				break
			}
		}
		if !ready {
			if len(sub.SourceNodes()) > 0 {
				appendGraph(sub)
			}
			continue
		}

		// Merger boundary: a node consuming more than one edge starts a new
		// subgraph unless the current one is still empty.
		if len(inputFIDs) > 1 && len(sub.SourceNodes()) > 0 {
			appendGraph(sub)
			sub = newSubgraph()
		}
		if len(inputFIDs) > 1 {
			sub.Merger = true
		}

		if visitedNodes[oldNodeID] {
			continue
		}
		visitedNodes[oldNodeID] = true

		newNode := ir.CloneNode(node)
		sub.AddNode(newNode)

		for _, fid := range inputFIDs {
			if _, exists := sub.Edge(fid.Ident); !exists {
				_ = sub.AddToEdge(newNode.ID, &ir.Edge{ID: fid.Ident, FID: fid})
			} else {
				_ = sub.SetEdgeTo(fid.Ident, newNode.ID)
			}
			edgeFifo[fid.Ident] = append(edgeFifo[fid.Ident], sub)
		}

		for _, fid := range outputFIDs {
			_ = sub.AddFromEdge(newNode.ID, &ir.Edge{ID: fid.Ident, FID: fid})
			visitedEdges[fid.Ident] = true
		}

		nextIDs := graph.NextNodes(oldNodeID)
		lastOutputAlreadyConsumed := false
		if len(outputFIDs) > 0 {
			last := outputFIDs[len(outputFIDs)-1]
			lastOutputAlreadyConsumed = edgeFifo[last.Ident] != nil
		}
		if len(inputFIDs) == 1 && len(nextIDs) == 1 && !lastOutputAlreadyConsumed {
			queue = append(queue, queueItem{nodeID: nextIDs[0], sub: sub})
		} else {
			appendGraph(sub)
			for _, nid := range nextIDs {
				queue = append(queue, queueItem{nodeID: nid, sub: newSubgraph()})
			}
		}
	}

	return subgraphs, edgeFifo
}
