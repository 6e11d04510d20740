// Package rewrite splices remote-pipe nodes into split subgraphs so each
// one can run on a different worker, connected by plain TCP instead of the
// in-process pipes a single shell would use.
package rewrite

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"

	"github.com/dspash/dspash-go/internal/domain/ir"
)

// DefaultBasePort is the first port handed out by a fresh PortAllocator,
// matching the original dspash coordinator's NEXT_PORT seed.
const DefaultBasePort = 58000

// PortAllocator hands out distinct remote-pipe listen ports. The
// coordinator holds one allocator for its lifetime and every Rewrite call
// draws from it, so pipelines dispatched back to back never reuse a port.
// Next is atomic, so the allocator is safe for concurrent use.
type PortAllocator struct {
	next int64
}

// NewPortAllocator returns an allocator whose first Next() call returns base.
func NewPortAllocator(base int) *PortAllocator {
	return &PortAllocator{next: int64(base)}
}

// Next returns the next unused port.
func (p *PortAllocator) Next() int {
	return int(atomic.AddInt64(&p.next, 1) - 1)
}

// Worker is the subset of a worker connection the rewriter needs: where to
// dial/listen, and how to account for the load placing a subgraph adds.
type Worker interface {
	Host() string
	IncLoad()
}

// Picker selects a worker to host a subgraph, given the FileIDs that
// subgraph's source nodes require to already be present (so the picker can
// prefer a worker where those bytes already live). Returns
// errors.ErrNoEligibleWorker (wrapped) when none qualify.
type Picker interface {
	Pick(criticalFIDs []ir.FileID) (Worker, error)
}

// Placement pairs a subgraph with the worker chosen to run it.
type Placement struct {
	Worker   Worker
	Subgraph *ir.Subgraph
}

// GraphPair names the two subgraphs a remote-pipe uuid ties together: the
// one hosting the remote-write end (Producer) and the one hosting the
// matching remote-read end (Consumer). "main" is a valid value for either
// side, since main both gathers subgraph output and relays file/fd input.
type GraphPair struct {
	Producer string
	Consumer string
}

// Rewrite places every subgraph on a worker and splices in remote-read/
// remote-write nodes wherever an edge now crosses a host boundary. Every
// such pair is tagged with a fresh uuid (spec.md §4.3 step 4), recorded in
// the returned uuidToGraphs so the caller can track which subgraphs are
// still owed a completion notice for that pipe. Rewrite returns the
// subgraph meant to run on the coordinator's own host (main, gathering
// final stdout/file writes) and the full worker/subgraph placement list.
// Mirrors ir_helper.py's add_remote_pipes.
func Rewrite(subgraphs []*ir.Subgraph, edgeFifo map[string][]*ir.Subgraph, gen *ir.FileIDGen, ports *PortAllocator, pick Picker) (main *ir.Subgraph, placements []Placement, uuidToGraphs map[uuid.UUID]GraphPair, err error) {
	main = ir.NewSubgraph("main", gen)
	uuidToGraphs = make(map[uuid.UUID]GraphPair)

	for _, sg := range subgraphs {
		worker, perr := pick.Pick(nil)
		if perr != nil {
			return nil, nil, nil, perr
		}
		worker.IncLoad()
		placements = append(placements, Placement{Worker: worker, Subgraph: sg})

		sinks := sg.SinkNodes()
		if len(sinks) != 1 {
			return nil, nil, nil, dserrors.InvalidState("rewrite",
				fmt.Sprintf("subgraph %s has %d sink nodes, want exactly 1", sg.ID, len(sinks)))
		}
		sink := sinks[0]

		for _, outEdgeID := range append([]string(nil), sink.Outputs...) {
			outEdge, ok := sg.Edge(outEdgeID)
			if !ok {
				continue
			}
			wasEphemeral := ir.IsEphemeral(outEdge.FID.Resource)

			stdout := addStdoutFID(gen)
			writePort := ports.Next()
			pipeID := uuid.New()

			ephemeral := &ir.Edge{ID: uniqueEdgeID(gen), FID: gen.NextEphemeral()}
			if err := sg.ReplaceEdge(sink.ID, outEdgeID, ephemeral); err != nil {
				return nil, nil, nil, err
			}

			remoteWrite := &ir.Node{
				ID:     fmt.Sprintf("%s-remote-write-%s", sg.ID, outEdgeID),
				Kind:   ir.KindRemoteWrite,
				Host:   worker.Host(),
				Port:   writePort,
				PipeID: pipeID,
			}
			sg.AddNode(remoteWrite)
			if err := sg.AddToEdge(remoteWrite.ID, ephemeral); err != nil {
				return nil, nil, nil, err
			}
			if err := sg.AddFromEdge(remoteWrite.ID, &ir.Edge{ID: stdout.Ident, FID: stdout}); err != nil {
				return nil, nil, nil, err
			}

			newEdge := &ir.Edge{ID: uniqueEdgeID(gen), FID: gen.Next(outEdge.FID.Resource)}

			var matching *ir.Subgraph
			if consumers, ok := edgeFifo[outEdgeID]; ok && wasEphemeral && len(consumers) > 0 {
				matching = consumers[0]
				if err := matching.ReplaceEdgeEverywhere(outEdgeID, newEdge); err != nil {
					return nil, nil, nil, err
				}
			} else {
				matching = main
				matching.AddEdge(newEdge)
			}

			remoteRead := &ir.Node{
				ID:     fmt.Sprintf("%s-remote-read-%s", matching.ID, newEdge.ID),
				Kind:   ir.KindRemoteRead,
				Host:   worker.Host(),
				Port:   writePort,
				PipeID: pipeID,
			}
			matching.AddNode(remoteRead)
			if err := matching.AddFromEdge(remoteRead.ID, newEdge); err != nil {
				return nil, nil, nil, err
			}

			uuidToGraphs[pipeID] = GraphPair{Producer: sg.ID, Consumer: matching.ID}
		}
	}

	// Second pass: any subgraph whose source nodes still read a concrete
	// file or inherited fd (not an ephemeral pipe another subgraph feeds)
	// needs that input relayed from the coordinator's own host too.
	for _, sg := range subgraphs {
		for _, source := range sg.SourceNodes() {
			for _, inEdgeID := range append([]string(nil), source.Inputs...) {
				inEdge, ok := sg.Edge(inEdgeID)
				if !ok {
					continue
				}
				if !ir.HasFileResource(inEdge.FID.Resource) && !ir.HasFDResource(inEdge.FID.Resource) {
					continue
				}

				placement := placementFor(placements, sg)
				if placement == nil {
					return nil, nil, nil, dserrors.Internal("rewrite: subgraph missing placement", nil)
				}

				writePort := ports.Next()
				stdout := addStdoutFID(gen)
				pipeID := uuid.New()

				newEdge := &ir.Edge{ID: uniqueEdgeID(gen), FID: gen.Next(inEdge.FID.Resource)}
				main.AddEdge(newEdge)

				remoteWrite := &ir.Node{
					ID:     fmt.Sprintf("main-remote-write-%s", newEdge.ID),
					Kind:   ir.KindRemoteWrite,
					Port:   writePort,
					PipeID: pipeID,
				}
				main.AddNode(remoteWrite)
				if err := main.AddToEdge(remoteWrite.ID, newEdge); err != nil {
					return nil, nil, nil, err
				}
				if err := main.AddFromEdge(remoteWrite.ID, &ir.Edge{ID: stdout.Ident, FID: stdout}); err != nil {
					return nil, nil, nil, err
				}

				ephemeral := &ir.Edge{ID: uniqueEdgeID(gen), FID: gen.NextEphemeral()}
				if err := sg.ReplaceEdge(source.ID, inEdgeID, ephemeral); err != nil {
					return nil, nil, nil, err
				}

				remoteRead := &ir.Node{
					ID:     fmt.Sprintf("%s-remote-read-%s", sg.ID, ephemeral.ID),
					Kind:   ir.KindRemoteRead,
					Host:   placement.Worker.Host(),
					Port:   writePort,
					PipeID: pipeID,
				}
				sg.AddNode(remoteRead)
				if err := sg.AddFromEdge(remoteRead.ID, ephemeral); err != nil {
					return nil, nil, nil, err
				}

				uuidToGraphs[pipeID] = GraphPair{Producer: main.ID, Consumer: sg.ID}
			}
		}
	}

	return main, placements, uuidToGraphs, nil
}

// addStdoutFID mints a FileID backed by the inherited stdout descriptor,
// the fake sink every remote-write node's shell script needs to satisfy the
// shell-to-IR converter. Mirrors ir_helper.py's add_stdout_fid.
func addStdoutFID(gen *ir.FileIDGen) ir.FileID {
	return gen.Next(ir.FDResource{FD: 1})
}

func placementFor(placements []Placement, sg *ir.Subgraph) *Placement {
	for i := range placements {
		if placements[i].Subgraph == sg {
			return &placements[i]
		}
	}
	return nil
}

// uniqueEdgeID mints a fresh, globally-unique string suitable as an Edge.ID.
// It borrows the FileIDGen's counter rather than keeping a separate one so
// edge ids and FileIDs never collide within one rewrite pass.
func uniqueEdgeID(gen *ir.FileIDGen) string {
	return gen.NextEphemeral().Ident
}
