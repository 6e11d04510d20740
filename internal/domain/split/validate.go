package split

import (
	"fmt"

	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"

	"github.com/dspash/dspash-go/internal/domain/ir"
)

// Validate checks the round-trip invariant a split must hold: every node in
// graph appears in exactly one of subgraphs, and no subgraph contains a node
// absent from graph. It does not check edge placement, since edges are
// rewritten in place by internal/domain/rewrite after the split.
func Validate(graph *ir.Graph, subgraphs []*ir.Subgraph) error {
	owner := make(map[string]string, len(graph.Nodes()))
	for _, sg := range subgraphs {
		for _, n := range sg.Nodes() {
			if prior, ok := owner[n.ID]; ok {
				return dserrors.InvalidState("split", fmt.Sprintf(
					"node %s placed in both %s and %s", n.ID, prior, sg.ID))
			}
			owner[n.ID] = sg.ID
		}
	}
	for _, n := range graph.Nodes() {
		if _, ok := owner[n.ID]; !ok {
			return dserrors.InvalidState("split", fmt.Sprintf("node %s missing from split output", n.ID))
		}
	}
	if len(owner) != len(graph.Nodes()) {
		return dserrors.InvalidState("split", "split produced nodes absent from the source graph")
	}
	return nil
}
