// Package wire implements the length-prefixed TCP protocol spoken between
// the coordinator and a worker process: one framed, gob-encoded Message per
// request, one framed Message per response.
package wire

import "github.com/dspash/dspash-go/internal/domain/ir"

// MessageType discriminates which of Message's optional payload fields is
// populated. Mirrors the `type` string key of the original dspash wire
// protocol's dict-based requests.
type MessageType string

const (
	MsgSetup          MessageType = "Setup"
	MsgExecGraph      MessageType = "Exec-Graph"
	MsgBatchExecGraph MessageType = "Batch-Exec-Graph"
	MsgKillSubgraphs  MessageType = "Kill-Subgraphs"
	MsgKillNode       MessageType = "Kill-Node"
	MsgDone           MessageType = "Done"
	MsgAck            MessageType = "Ack"
)

// Message is the tagged union sent over the wire. Exactly one of the
// pointer fields matching Type is non-nil; gob happily encodes the others
// as absent rather than as explicit nils, keeping frames small.
type Message struct {
	Type MessageType

	Setup          *SetupRequest
	ExecGraph      *ExecGraphRequest
	BatchExecGraph *BatchExecGraphRequest
	KillSubgraphs  *KillSubgraphsRequest
	KillNode       *KillNodeRequest
	Done           *DoneRequest
	Ack            *AckResponse
}

// SetupRequest is sent once per worker connection before any graph
// dispatch, mirroring WorkerConnection.send_setup_request.
type SetupRequest struct {
	Debug      bool
	PoolSize   int
	FTMode     string
	ScriptName string
	KillTarget string
}

// ExecGraphRequest asks a worker to run one subgraph as a shell script.
type ExecGraphRequest struct {
	Graph         ir.GraphDefinition
	ShellVars     map[string]string
	Functions     string
	MergerID      string
	KillTarget    string
	Debug         bool
	WorkerTimeout int
}

// BatchExecGraphRequest asks a worker to run several subgraphs from the
// same merger region in one round trip (optimized fault-tolerance mode).
type BatchExecGraphRequest struct {
	ShellVars     map[string]string
	Functions     string
	MergerID      string
	Regulars      []ir.GraphDefinition
	Mergers       []ir.GraphDefinition
	Debug         bool
	WorkerTimeout int
}

// KillSubgraphsRequest tells a worker to terminate every process belonging
// to MergerID, or every process on the worker when All is set (the -1
// sentinel in the original protocol).
type KillSubgraphsRequest struct {
	MergerID string
	All      bool
}

// KillNodeRequest tells a worker to terminate itself after KillDelay,
// simulating a crash for fault-tolerance testing.
type KillNodeRequest struct {
	KillTarget string
	KillDelay  int
}

// DoneRequest closes out a connection; the sender will read no further
// responses.
type DoneRequest struct{}

// AckResponse is the uniform response envelope, mirroring send_success's
// {status, body, msg} shape.
type AckResponse struct {
	OK   bool
	Msg  string
	Body map[string]string
}
