package ir

import "github.com/google/uuid"

// Kind discriminates the shell commands the splitter/rewriter care about
// from the synthetic nodes they insert.
type Kind string

const (
	// KindCommand is an ordinary shell command (argv + env).
	KindCommand Kind = "command"

	// KindRemoteRead is a synthetic node: dials the paired remote-write's
	// host:port and writes the bytes it receives to one output edge.
	KindRemoteRead Kind = "remote-read"

	// KindRemoteWrite is a synthetic node: reads one input edge and listens
	// on a port, writing what it reads to the remote-read that connects.
	KindRemoteWrite Kind = "remote-write"
)

// Edge is one FileID plus the node ids it's wired between. From/To are nil
// until AddFromEdge/AddToEdge wire them; an edge with a nil end is still
// "pending" from the splitter's point of view.
type Edge struct {
	ID   string
	From *string
	To   *string
	FID  FileID
}

// Node is one shell command or synthetic remote-pipe endpoint. Inputs and
// Outputs hold edge ids, not FileIDs directly, so that ReplaceEdge can swap
// an edge's FileID without walking every node that references it.
type Node struct {
	ID      string
	Kind    Kind
	Argv    []string
	Env     map[string]string
	Inputs  []string
	Outputs []string

	// Merger marks a node that serializes output from more than one
	// upstream subgraph. The splitter does not set it: at a merger boundary
	// it marks the whole subgraph instead (Subgraph.Merger).
	Merger bool

	// Host pins a synthetic remote-read/remote-write node to the host:port
	// it listens on or dials; empty for ordinary command nodes until the
	// rewriter assigns a worker.
	Host string
	Port int

	// PipeID tags a remote-write/remote-read pair with the uuid the
	// rewriter minted for that pipe (spec.md §4.3 step 4); both ends of
	// the same pipe carry the same PipeID. Zero value for ordinary
	// command nodes.
	PipeID uuid.UUID
}

// CloneNode returns a deep copy of n, used by the splitter to place an
// independent copy of a node into each subgraph it belongs to.
func CloneNode(n *Node) *Node {
	return cloneNode(n)
}

func cloneNode(n *Node) *Node {
	cp := &Node{
		ID:      n.ID,
		Kind:    n.Kind,
		Argv:    append([]string(nil), n.Argv...),
		Inputs:  append([]string(nil), n.Inputs...),
		Outputs: append([]string(nil), n.Outputs...),
		Merger:  n.Merger,
		Host:    n.Host,
		Port:    n.Port,
		PipeID:  n.PipeID,
	}
	if n.Env != nil {
		cp.Env = make(map[string]string, len(n.Env))
		for k, v := range n.Env {
			cp.Env[k] = v
		}
	}
	return cp
}
