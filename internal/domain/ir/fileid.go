package ir

import (
	"fmt"
	"sync/atomic"
)

// FileID names one edge's payload: a byte stream flowing from at most one
// producing node to at most one consuming node. Two FileIDs are the same
// edge iff their Ident matches.
type FileID struct {
	Ident    string
	Resource Resource
}

func (f FileID) String() string {
	return fmt.Sprintf("%s:%s", f.Ident, f.Resource)
}

// FileIDGen mints unique FileIDs for one IR graph. It is safe for concurrent
// use; the splitter and rewriter only ever touch one generator from a single
// goroutine, but the rewriter's port allocator shares the same atomic
// discipline so neither needs a separate lock.
type FileIDGen struct {
	next int64
}

// NewFileIDGen returns a generator whose first minted id is "fid0".
func NewFileIDGen() *FileIDGen {
	return &FileIDGen{}
}

// Next mints a fresh FileID carrying r.
func (g *FileIDGen) Next(r Resource) FileID {
	n := atomic.AddInt64(&g.next, 1) - 1
	return FileID{Ident: fmt.Sprintf("fid%d", n), Resource: r}
}

// NextEphemeral mints a fresh FileID backed by an anonymous pipe, the
// default resource for a brand-new intra-subgraph edge.
func (g *FileIDGen) NextEphemeral() FileID {
	return g.Next(EphemeralResource{})
}
