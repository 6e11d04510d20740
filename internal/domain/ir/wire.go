package ir

import "github.com/google/uuid"

// GraphDefinition is the wire-transport shape of a Subgraph: flat slices of
// plain data instead of pointer-linked nodes/edges, suitable for gob
// encoding across a worker connection (internal/infrastructure/wire) or
// storage as an audit record (internal/infrastructure/persistence/postgres).
// Mirrors the teacher's worker.GraphDefinition/NodeDefinition/EdgeDefinition
// shapes, generalized from a workflow DAG to a shell-pipeline subgraph.
type GraphDefinition struct {
	ID     string
	Merger bool
	Nodes  []NodeDefinition
	Edges  []EdgeDefinition
}

// NodeDefinition is the wire shape of a Node.
type NodeDefinition struct {
	ID      string
	Kind    Kind
	Argv    []string
	Env     map[string]string
	Inputs  []string
	Outputs []string
	Host    string
	Port    int
	PipeID  uuid.UUID
}

// EdgeDefinition is the wire shape of an Edge. From/To use "" for a nil end
// rather than a pointer, since gob round-trips a nil *string as a zero value
// anyway and a flat string is simpler for Postgres JSONB storage.
type EdgeDefinition struct {
	ID          string
	From        string
	To          string
	FileIdent   string
	ResourceTag string // "file", "fd", "ephemeral", or "remote-pipe"

	// Exactly the fields relevant to ResourceTag are populated.
	Path         string // "file"
	Remote       bool   // "file"
	FD           int    // "fd"
	RemoteHost   string // "remote-pipe"
	RemotePort   int    // "remote-pipe"
	RemoteRole   Role   // "remote-pipe"
}

// ToWire flattens s into a GraphDefinition for transport or storage.
func (s *Subgraph) ToWire() GraphDefinition {
	def := GraphDefinition{ID: s.ID, Merger: s.Merger}
	for _, n := range s.Nodes() {
		def.Nodes = append(def.Nodes, NodeDefinition{
			ID:      n.ID,
			Kind:    n.Kind,
			Argv:    n.Argv,
			Env:     n.Env,
			Inputs:  n.Inputs,
			Outputs: n.Outputs,
			Host:    n.Host,
			Port:    n.Port,
			PipeID:  n.PipeID,
		})
	}
	for _, e := range s.Edges() {
		ed := EdgeDefinition{ID: e.ID, FileIdent: e.FID.Ident}
		if e.From != nil {
			ed.From = *e.From
		}
		if e.To != nil {
			ed.To = *e.To
		}
		switch r := e.FID.Resource.(type) {
		case FileResource:
			ed.ResourceTag = "file"
			ed.Path = r.Path
			ed.Remote = r.Remote
		case FDResource:
			ed.ResourceTag = "fd"
			ed.FD = r.FD
		case EphemeralResource:
			ed.ResourceTag = "ephemeral"
		case RemotePipeResource:
			ed.ResourceTag = "remote-pipe"
			ed.RemoteHost = r.Host
			ed.RemotePort = r.Port
			ed.RemoteRole = r.Role
		}
		def.Edges = append(def.Edges, ed)
	}
	return def
}

// FromWire reconstructs a live Subgraph from a GraphDefinition, wiring node
// Inputs/Outputs back through the embedded Graph so Graph queries
// (NextNodes, SourceNodes, ...) work identically to one built via split.
func FromWire(def GraphDefinition, gen *FileIDGen) *Subgraph {
	s := NewSubgraph(def.ID, gen)
	s.Merger = def.Merger
	for _, nd := range def.Nodes {
		s.AddNode(&Node{
			ID:      nd.ID,
			Kind:    nd.Kind,
			Argv:    nd.Argv,
			Env:     nd.Env,
			Inputs:  append([]string(nil), nd.Inputs...),
			Outputs: append([]string(nil), nd.Outputs...),
			Host:    nd.Host,
			Port:    nd.Port,
			PipeID:  nd.PipeID,
		})
	}
	for _, ed := range def.Edges {
		var r Resource
		switch ed.ResourceTag {
		case "file":
			r = FileResource{Path: ed.Path, Remote: ed.Remote}
		case "fd":
			r = FDResource{FD: ed.FD}
		case "remote-pipe":
			r = RemotePipeResource{Host: ed.RemoteHost, Port: ed.RemotePort, Role: ed.RemoteRole}
		default:
			r = EphemeralResource{}
		}
		e := &Edge{ID: ed.ID, FID: FileID{Ident: ed.FileIdent, Resource: r}}
		if ed.From != "" {
			from := ed.From
			e.From = &from
		}
		if ed.To != "" {
			to := ed.To
			e.To = &to
		}
		s.AddEdge(e)
	}
	return s
}
