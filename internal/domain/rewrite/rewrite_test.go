package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspash/dspash-go/internal/domain/ir"
	"github.com/dspash/dspash-go/internal/domain/split"
)

type fakeWorker struct {
	host string
	load int
}

func (w *fakeWorker) Host() string { return w.host }
func (w *fakeWorker) IncLoad()     { w.load++ }

type fixedPicker struct {
	workers []Worker
	i       int
}

func (p *fixedPicker) Pick(_ []ir.FileID) (Worker, error) {
	w := p.workers[p.i%len(p.workers)]
	p.i++
	return w, nil
}

func buildLinearGraph(t *testing.T) *ir.Graph {
	t.Helper()
	gen := ir.NewFileIDGen()
	g := ir.NewGraph(gen)

	g.AddNode(&ir.Node{ID: "cat", Argv: []string{"cat", "in.txt"}})
	g.AddNode(&ir.Node{ID: "grep", Argv: []string{"grep", "foo"}})

	in := &ir.Edge{ID: "e0", FID: gen.Next(ir.FileResource{Path: "in.txt"})}
	require.NoError(t, g.AddToEdge("cat", in))

	mid := &ir.Edge{ID: "e1", FID: gen.NextEphemeral()}
	require.NoError(t, g.AddFromEdge("cat", mid))
	require.NoError(t, g.AddToEdge("grep", mid))

	out := &ir.Edge{ID: "e2", FID: gen.Next(ir.FDResource{FD: 1})}
	require.NoError(t, g.AddFromEdge("grep", out))

	return g
}

func TestRewriteSplicesRemotePipesAroundSingleSubgraph(t *testing.T) {
	g := buildLinearGraph(t)
	subgraphs, edgeFifo := split.Split(g)
	require.Len(t, subgraphs, 1)

	ports := NewPortAllocator(DefaultBasePort)
	picker := &fixedPicker{workers: []Worker{&fakeWorker{host: "worker-1"}}}

	main, placements, uuidToGraphs, err := Rewrite(subgraphs, edgeFifo, g.Gen(), ports, picker)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	require.Len(t, uuidToGraphs, 2)

	w := placements[0].Worker.(*fakeWorker)
	assert.Equal(t, 1, w.load)

	sg := placements[0].Subgraph
	var sgWrite, sgRead *ir.Node
	for _, n := range sg.Nodes() {
		n := n
		switch n.Kind {
		case ir.KindRemoteWrite:
			sgWrite = n
			assert.Equal(t, "worker-1", n.Host)
		case ir.KindRemoteRead:
			sgRead = n
		}
	}
	// one remote-write for the sink's stdout, one remote-read for the
	// source's file input (spliced in during the second pass).
	require.NotNil(t, sgWrite)
	require.NotNil(t, sgRead)

	var mainWrite, mainRead *ir.Node
	for _, n := range main.Nodes() {
		n := n
		switch n.Kind {
		case ir.KindRemoteRead:
			mainRead = n
		case ir.KindRemoteWrite:
			mainWrite = n
		}
	}
	require.NotNil(t, mainRead)
	require.NotNil(t, mainWrite)

	// the subgraph's write end and main's read end are one pipe, tagged
	// with the same uuid; likewise main's write end and the subgraph's
	// read end (its file input relayed from the coordinator's host).
	assert.Equal(t, sgWrite.PipeID, mainRead.PipeID)
	assert.Equal(t, mainWrite.PipeID, sgRead.PipeID)
	assert.NotEqual(t, sgWrite.PipeID, mainWrite.PipeID)

	assert.Equal(t, GraphPair{Producer: sg.ID, Consumer: main.ID}, uuidToGraphs[sgWrite.PipeID])
	assert.Equal(t, GraphPair{Producer: main.ID, Consumer: sg.ID}, uuidToGraphs[mainWrite.PipeID])
}

func TestPortAllocatorIsMonotonic(t *testing.T) {
	p := NewPortAllocator(58000)
	a := p.Next()
	b := p.Next()
	c := p.Next()
	assert.Equal(t, 58000, a)
	assert.Equal(t, 58001, b)
	assert.Equal(t, 58002, c)
}
