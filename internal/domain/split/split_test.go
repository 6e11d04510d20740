package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspash/dspash-go/internal/domain/ir"
)

func buildLinearGraph(t *testing.T) *ir.Graph {
	t.Helper()
	gen := ir.NewFileIDGen()
	g := ir.NewGraph(gen)

	g.AddNode(&ir.Node{ID: "cat", Argv: []string{"cat", "in.txt"}})
	g.AddNode(&ir.Node{ID: "grep", Argv: []string{"grep", "foo"}})
	g.AddNode(&ir.Node{ID: "wc", Argv: []string{"wc", "-l"}})

	in := &ir.Edge{ID: "e0", FID: gen.Next(ir.FileResource{Path: "in.txt"})}
	require.NoError(t, g.AddToEdge("cat", in))

	mid := &ir.Edge{ID: "e1", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("cat", mid))
	require.NoError(t, g.AddToEdge("grep", mid))

	mid2 := &ir.Edge{ID: "e2", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("grep", mid2))
	require.NoError(t, g.AddToEdge("wc", mid2))

	out := &ir.Edge{ID: "e3", FID: gen.Next(ir.FDResource{FD: 1})}
	require.NoError(t, g.AddFromEdge("wc", out))

	return g
}

// buildDiamondGraph: source fans out to a and b, both feed into a merger.
//
//	   source
//	   /    \
//	  a      b
//	   \    /
//	   merge
func buildDiamondGraph(t *testing.T) *ir.Graph {
	t.Helper()
	gen := ir.NewFileIDGen()
	g := ir.NewGraph(gen)

	g.AddNode(&ir.Node{ID: "source", Argv: []string{"tee"}})
	g.AddNode(&ir.Node{ID: "a", Argv: []string{"sort"}})
	g.AddNode(&ir.Node{ID: "b", Argv: []string{"uniq"}})
	g.AddNode(&ir.Node{ID: "merge", Argv: []string{"paste"}})

	in := &ir.Edge{ID: "e0", FID: gen.Next(ir.FileResource{Path: "in.txt"})}
	require.NoError(t, g.AddToEdge("source", in))

	toA := &ir.Edge{ID: "e1", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("source", toA))
	require.NoError(t, g.AddToEdge("a", toA))

	toB := &ir.Edge{ID: "e2", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("source", toB))
	require.NoError(t, g.AddToEdge("b", toB))

	aOut := &ir.Edge{ID: "e3", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("a", aOut))
	require.NoError(t, g.AddToEdge("merge", aOut))

	bOut := &ir.Edge{ID: "e4", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("b", bOut))
	require.NoError(t, g.AddToEdge("merge", bOut))

	sink := &ir.Edge{ID: "e5", FID: gen.Next(ir.FDResource{FD: 1})}
	require.NoError(t, g.AddFromEdge("merge", sink))

	return g
}

// buildTeeGraph: source fans out to two independent sinks, no merger.
func buildTeeGraph(t *testing.T) *ir.Graph {
	t.Helper()
	gen := ir.NewFileIDGen()
	g := ir.NewGraph(gen)

	g.AddNode(&ir.Node{ID: "source", Argv: []string{"tee", "/tmp/a", "/tmp/b"}})
	g.AddNode(&ir.Node{ID: "a", Argv: []string{"sort"}})
	g.AddNode(&ir.Node{ID: "b", Argv: []string{"uniq"}})

	in := &ir.Edge{ID: "e0", FID: gen.Next(ir.FileResource{Path: "in.txt"})}
	require.NoError(t, g.AddToEdge("source", in))

	toA := &ir.Edge{ID: "e1", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("source", toA))
	require.NoError(t, g.AddToEdge("a", toA))

	toB := &ir.Edge{ID: "e2", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("source", toB))
	require.NoError(t, g.AddToEdge("b", toB))

	aSink := &ir.Edge{ID: "e3", FID: gen.Next(ir.FileResource{Path: "/tmp/a.out"})}
	require.NoError(t, g.AddFromEdge("a", aSink))

	bSink := &ir.Edge{ID: "e4", FID: gen.Next(ir.FileResource{Path: "/tmp/b.out"})}
	require.NoError(t, g.AddFromEdge("b", bSink))

	return g
}

func allNodeIDs(subgraphs []*ir.Subgraph) map[string]int {
	counts := make(map[string]int)
	for _, sg := range subgraphs {
		for _, n := range sg.Nodes() {
			counts[n.ID]++
		}
	}
	return counts
}

func TestSplitLinearStaysInOneSubgraph(t *testing.T) {
	g := buildLinearGraph(t)
	subgraphs, edgeFifo := Split(g)

	require.NoError(t, Validate(g, subgraphs))
	require.Len(t, subgraphs, 1)
	assert.Len(t, subgraphs[0].Nodes(), 3)
	assert.NotEmpty(t, edgeFifo)
}

func TestSplitDiamondCutsAtMerger(t *testing.T) {
	g := buildDiamondGraph(t)
	subgraphs, _ := Split(g)

	require.NoError(t, Validate(g, subgraphs))
	// source, a+source-branch..., b-branch, merge: 4 pieces.
	require.Len(t, subgraphs, 4)

	counts := allNodeIDs(subgraphs)
	assert.Equal(t, 1, counts["source"])
	assert.Equal(t, 1, counts["a"])
	assert.Equal(t, 1, counts["b"])
	assert.Equal(t, 1, counts["merge"])

	var mergerSubgraph *ir.Subgraph
	mergerCount := 0
	for _, sg := range subgraphs {
		if _, ok := sg.Node("merge"); ok {
			mergerSubgraph = sg
		}
		if sg.Merger {
			mergerCount++
		}
	}
	require.NotNil(t, mergerSubgraph)
	assert.True(t, mergerSubgraph.IsEmpty() == false)
	assert.True(t, mergerSubgraph.Merger, "subgraph holding the fan-in node must be marked Merger")
	assert.Equal(t, 1, mergerCount, "exactly one subgraph in a fan-out+merge pipeline is a merger")
}

func TestSplitTeeWithoutMergerProducesThreeSubgraphs(t *testing.T) {
	g := buildTeeGraph(t)
	subgraphs, _ := Split(g)

	require.NoError(t, Validate(g, subgraphs))
	require.Len(t, subgraphs, 3)

	counts := allNodeIDs(subgraphs)
	assert.Equal(t, 1, counts["source"])
	assert.Equal(t, 1, counts["a"])
	assert.Equal(t, 1, counts["b"])

	for _, sg := range subgraphs {
		assert.False(t, sg.Merger, "a tee with no fan-in node has no merger subgraph")
	}
}

func TestValidateCatchesDuplicatePlacement(t *testing.T) {
	g := buildLinearGraph(t)
	subgraphs, _ := Split(g)

	dup := ir.NewSubgraph("dup", g.Gen())
	n, ok := g.Node("cat")
	require.True(t, ok)
	dup.AddNode(ir.CloneNode(n))

	err := Validate(g, append(subgraphs, dup))
	assert.Error(t, err)
}
