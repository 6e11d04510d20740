// Package ir implements the intermediate dataflow graph model: FileIDs,
// nodes, typed edges, and the DAG queries the splitter and rewriter need.
package ir

import "fmt"

// Role distinguishes the two ends of a synthetic remote-pipe edge.
type Role int

const (
	RoleRead Role = iota
	RoleWrite
)

func (r Role) String() string {
	if r == RoleRead {
		return "read"
	}
	return "write"
}

// Resource is the payload carried by a FileID. Exactly one variant is set.
type Resource interface {
	isResource()
	fmt.Stringer
}

// FileResource is a concrete path in a shared or local filesystem.
type FileResource struct {
	Path   string
	Remote bool // true if backed by the DFS rather than a local disk
}

func (FileResource) isResource() {}
func (r FileResource) String() string {
	return fmt.Sprintf("file(%s)", r.Path)
}

// FDResource is an inherited file descriptor of the host shell (stdin=0, stdout=1, ...).
type FDResource struct {
	FD int
}

func (FDResource) isResource() {}
func (r FDResource) String() string { return fmt.Sprintf("fd(%d)", r.FD) }

// EphemeralResource is an anonymous in-process pipe local to one subgraph.
type EphemeralResource struct{}

func (EphemeralResource) isResource() {}
func (EphemeralResource) String() string { return "ephemeral" }

// RemotePipeResource is a synthetic edge realized by a TCP connection
// between two subgraphs running on different hosts.
type RemotePipeResource struct {
	Host string
	Port int
	Role Role
}

func (RemotePipeResource) isResource() {}
func (r RemotePipeResource) String() string {
	return fmt.Sprintf("remote-pipe(%s:%d,%s)", r.Host, r.Port, r.Role)
}

// HasFileResource reports whether fid is backed by a concrete path.
func HasFileResource(r Resource) bool {
	_, ok := r.(FileResource)
	return ok
}

// HasFDResource reports whether fid is backed by an inherited fd.
func HasFDResource(r Resource) bool {
	_, ok := r.(FDResource)
	return ok
}

// IsEphemeral reports whether fid is an anonymous in-process pipe.
func IsEphemeral(r Resource) bool {
	_, ok := r.(EphemeralResource)
	return ok
}

// HasRemoteFileResource reports whether fid is a DFS-backed file, i.e. one
// that survives the producing host's crash and is therefore "critical" for
// recovery placement (spec ยง4.5's subgraph_critical_fids).
func HasRemoteFileResource(r Resource) bool {
	fr, ok := r.(FileResource)
	return ok && fr.Remote
}

// IsAvailableOn reports whether a resource's bytes can be read from host.
// Local files and fds are only available where they were produced;
// DFS-backed files and remote pipes are available everywhere the DFS /
// network reaches.
func IsAvailableOn(r Resource, producedOn, host string) bool {
	switch v := r.(type) {
	case FileResource:
		if v.Remote {
			return true
		}
		return producedOn == host
	case FDResource:
		return producedOn == host
	case EphemeralResource:
		return producedOn == host
	case RemotePipeResource:
		return true
	default:
		return false
	}
}
