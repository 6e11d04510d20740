package wire

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// WorkerConn is one coordinator-to-worker command connection: a single
// net.Conn, serialized by mu so concurrent dispatch/kill/setup calls never
// interleave frames, plus the bookkeeping the placement picker needs
// (online/offline flips from the liveness poller, outstanding process
// count). Mirrors the original WorkerConnection class.
type WorkerConn struct {
	name string
	host string
	port int

	mu   sync.Mutex
	conn net.Conn

	online  atomic.Bool
	running int32
}

// Dial opens a command connection to a worker. A dial failure still
// returns a non-nil, offline WorkerConn with no connection, so the pool can
// keep it registered. Nothing redials it afterwards: a later liveness
// notice only flips its online flag, and sends on it keep failing with
// WorkerUnreachable.
func Dial(name, host string, port int, timeout time.Duration) (*WorkerConn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	wc := &WorkerConn{name: name, host: host, port: port}
	if err != nil {
		return wc, dserrors.WorkerUnreachable(name, addr, err)
	}
	wc.conn = conn
	wc.online.Store(true)
	return wc, nil
}

func (w *WorkerConn) Name() string { return w.name }
func (w *WorkerConn) Host() string { return w.host }
func (w *WorkerConn) Port() int    { return w.port }
func (w *WorkerConn) addr() string { return fmt.Sprintf("%s:%d", w.host, w.port) }

// Online reports whether the liveness poller last saw this worker's host.
func (w *WorkerConn) Online() bool { return w.online.Load() }

// SetOnline flips the liveness flag; called by the liveness poller's
// OnAddrAdded/OnAddrRemoved callbacks, never by the connection itself.
func (w *WorkerConn) SetOnline(v bool) { w.online.Store(v) }

// RunningProcesses returns the number of subgraphs currently placed on this
// worker, used by Pool.PickWorker's least-loaded rule.
func (w *WorkerConn) RunningProcesses() int32 { return atomic.LoadInt32(&w.running) }

// IncLoad records a new subgraph placed on this worker.
func (w *WorkerConn) IncLoad() { atomic.AddInt32(&w.running, 1) }

// DecLoad records a subgraph's completion or reassignment away from this worker.
func (w *WorkerConn) DecLoad() {
	if atomic.AddInt32(&w.running, -1) < 0 {
		atomic.StoreInt32(&w.running, 0)
	}
}

// Send writes msg and returns without waiting for a response, used for
// fire-and-forget batch dispatch.
func (w *WorkerConn) Send(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return dserrors.WorkerUnreachable(w.name, w.addr(), nil)
	}
	return WriteFrame(w.conn, msg)
}

// SendRecv writes msg and blocks for the worker's single response frame.
func (w *WorkerConn) SendRecv(msg Message) (Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return Message{}, dserrors.WorkerUnreachable(w.name, w.addr(), nil)
	}
	if err := WriteFrame(w.conn, msg); err != nil {
		return Message{}, err
	}
	return ReadFrame(w.conn)
}

// SendSetup sends the one-time setup handshake.
func (w *WorkerConn) SendSetup(req SetupRequest) error {
	return w.Send(Message{Type: MsgSetup, Setup: &req})
}

// SendExecGraph dispatches a single subgraph, waiting for the worker's ack.
func (w *WorkerConn) SendExecGraph(req ExecGraphRequest) (AckResponse, error) {
	resp, err := w.SendRecv(Message{Type: MsgExecGraph, ExecGraph: &req})
	return ackOrErr(resp, err)
}

// SendBatchExecGraph dispatches several subgraphs in one request (optimized
// fault-tolerance mode, for both first dispatch and re-placement).
func (w *WorkerConn) SendBatchExecGraph(req BatchExecGraphRequest, waitAck bool) (AckResponse, error) {
	msg := Message{Type: MsgBatchExecGraph, BatchExecGraph: &req}
	if !waitAck {
		return AckResponse{}, w.Send(msg)
	}
	resp, err := w.SendRecv(msg)
	return ackOrErr(resp, err)
}

// SendKillSubgraphs tells the worker to terminate every process belonging
// to mergerID, or every process when all is true.
func (w *WorkerConn) SendKillSubgraphs(mergerID string, all bool) error {
	return w.Send(Message{Type: MsgKillSubgraphs, KillSubgraphs: &KillSubgraphsRequest{MergerID: mergerID, All: all}})
}

// SendKillNode tells the worker to terminate itself after delaySeconds,
// simulating a crash.
func (w *WorkerConn) SendKillNode(killTarget string, delaySeconds int) error {
	return w.Send(Message{Type: MsgKillNode, KillNode: &KillNodeRequest{KillTarget: killTarget, KillDelay: delaySeconds}})
}

// Close sends a Done message (best-effort) and closes the underlying
// connection.
func (w *WorkerConn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	_ = WriteFrame(w.conn, Message{Type: MsgDone, Done: &DoneRequest{}})
	err := w.conn.Close()
	w.conn = nil
	w.online.Store(false)
	return err
}

func ackOrErr(resp Message, err error) (AckResponse, error) {
	if err != nil {
		return AckResponse{}, err
	}
	if resp.Ack == nil {
		return AckResponse{}, dserrors.Protocol("worker", "expected ack, got "+string(resp.Type))
	}
	return *resp.Ack, nil
}
