// Package execnode implements the worker process's side of the command
// socket: the accept loop and per-connection message loop that receives a
// subgraph's wire form, renders it into a runnable shell script, and runs
// it as a child process. Ported from the original worker.py's Worker /
// manage_connection / exec_graph.
package execnode

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dspash/dspash-go/internal/infrastructure/wire"
	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// ScriptWriter turns a subgraph's wire definition into a sourceable shell
// script on disk and returns its path. Rendering IR into POSIX shell is the
// original project's own code generator and out of scope here; callers
// supply whatever renderer fits their deployment (a stub that shells out to
// the existing Python code generator, a native port, or a test double).
type ScriptWriter func(req wire.ExecGraphRequest) (scriptPath string, err error)

// Worker is one dspash worker process: it accepts command-socket
// connections, executes whatever Exec-Graph / Batch-Exec-Graph requests
// arrive on them, and tracks running child processes per merger region so a
// Kill-Subgraphs request can terminate them.
type Worker struct {
	host       string
	writeScript ScriptWriter

	mu       sync.Mutex
	children map[string][]*exec.Cmd // mergerID -> running processes ("" = no merger)

	killTimer *time.Timer
}

// NewWorker builds a Worker that renders scripts with writeScript.
func NewWorker(host string, writeScript ScriptWriter) *Worker {
	return &Worker{
		host:        host,
		writeScript: writeScript,
		children:    make(map[string][]*exec.Cmd),
	}
}

// Serve accepts connections on ln until ctx is done, handling each on its
// own goroutine. Mirrors Worker.run's accept loop, one goroutine per
// connection rather than one OS process per connection.
func (w *Worker) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				return dserrors.Internal("execnode: accept failed", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.manageConnection(ctx, conn)
		}()
	}
}

// manageConnection reads frames off conn until the peer closes it or sends
// Done, dispatching each to the matching handler and writing back an Ack
// for every request except Done, which closes the connection without one.
// Mirrors manage_connection's request loop.
func (w *Worker) manageConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log.Printf("execnode: connection from %s", conn.RemoteAddr())

	for {
		msg, err := wire.ReadFrame(conn)
		if err != nil {
			log.Printf("execnode: connection ended: %v", err)
			return
		}

		var ack wire.AckResponse
		switch msg.Type {
		case wire.MsgSetup:
			ack = wire.AckResponse{OK: true}

		case wire.MsgExecGraph:
			if msg.ExecGraph == nil {
				ack = wire.AckResponse{OK: false, Msg: "missing exec-graph body"}
				break
			}
			if err := w.execGraph(*msg.ExecGraph); err != nil {
				ack = wire.AckResponse{OK: false, Msg: err.Error()}
			} else {
				ack = wire.AckResponse{OK: true}
			}

		case wire.MsgBatchExecGraph:
			if msg.BatchExecGraph == nil {
				ack = wire.AckResponse{OK: false, Msg: "missing batch-exec-graph body"}
				break
			}
			if err := w.batchExecGraph(*msg.BatchExecGraph); err != nil {
				ack = wire.AckResponse{OK: false, Msg: err.Error()}
			} else {
				ack = wire.AckResponse{OK: true}
			}

		case wire.MsgKillSubgraphs:
			if msg.KillSubgraphs != nil {
				w.killSubgraphs(msg.KillSubgraphs.MergerID, msg.KillSubgraphs.All)
			}
			ack = wire.AckResponse{OK: true}

		case wire.MsgKillNode:
			delay := 0
			target := ""
			if msg.KillNode != nil {
				delay = msg.KillNode.KillDelay
				target = msg.KillNode.KillTarget
			}
			w.killNode(target, delay)
			ack = wire.AckResponse{OK: true}

		case wire.MsgDone:
			log.Printf("execnode: received Done, closing connection")
			return

		default:
			log.Printf("execnode: unsupported request type %s", msg.Type)
			ack = wire.AckResponse{OK: false, Msg: "unsupported request type"}
		}

		if err := wire.WriteFrame(conn, wire.Message{Type: wire.MsgAck, Ack: &ack}); err != nil {
			log.Printf("execnode: failed to write ack: %v", err)
			return
		}
	}
}

// execGraph renders req's subgraph into a script, writes its functions file,
// and starts `source <functions>; source <script>`, registering the
// resulting process under req.MergerID so Kill-Subgraphs can find it.
// Mirrors exec_graph.
func (w *Worker) execGraph(req wire.ExecGraphRequest) error {
	if req.WorkerTimeout > 0 {
		time.Sleep(time.Duration(req.WorkerTimeout) * time.Second)
	}

	scriptPath, err := w.writeScript(req)
	if err != nil {
		return dserrors.Internal("execnode: render script", err)
	}

	shellCmd := fmt.Sprintf("source %s", scriptPath)
	if req.Functions != "" {
		functionsPath, err := writeFunctionsFile(req.Functions)
		if err != nil {
			return dserrors.Internal("execnode: write functions file", err)
		}
		shellCmd = fmt.Sprintf("source %s; %s", functionsPath, shellCmd)
	}

	cmd := exec.Command("/bin/bash", "-c", shellCmd)
	cmd.Env = append(os.Environ(), envPairs(req.ShellVars)...)
	cmd.Stdout = os.Stdout
	if req.Debug {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return dserrors.Internal(fmt.Sprintf("execnode: spawn %s", scriptPath), err)
	}

	w.mu.Lock()
	w.children[req.MergerID] = append(w.children[req.MergerID], cmd)
	w.mu.Unlock()
	return nil
}

// writeFunctionsFile materializes a worker's shell function definitions
// (assembled by the coordinator from every node's originating script) to a
// temp file the spawned command can source before the subgraph script
// itself, matching the original's separate functions-file argument to
// exec_graph.
func writeFunctionsFile(functions string) (string, error) {
	f, err := os.CreateTemp("", "dspash-functions-*.sh")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(functions); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// batchExecGraph runs every regular and then every merger subgraph in req.
// The coordinator sends it in optimized fault-tolerance mode, both for the
// first dispatch and for re-placement; base and naive modes send one
// Exec-Graph per subgraph.
func (w *Worker) batchExecGraph(req wire.BatchExecGraphRequest) error {
	for _, g := range req.Regulars {
		if err := w.execGraph(wire.ExecGraphRequest{Graph: g, ShellVars: req.ShellVars, Functions: req.Functions, MergerID: req.MergerID, Debug: req.Debug}); err != nil {
			return err
		}
	}
	for _, g := range req.Mergers {
		if err := w.execGraph(wire.ExecGraphRequest{Graph: g, ShellVars: req.ShellVars, Functions: req.Functions, MergerID: req.MergerID, Debug: req.Debug}); err != nil {
			return err
		}
	}
	return nil
}

// killSubgraphs kills every tracked process for mergerID, or every tracked
// process if all is true.
func (w *Worker) killSubgraphs(mergerID string, all bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if all {
		for id, cmds := range w.children {
			killAll(cmds)
			delete(w.children, id)
		}
		return
	}
	killAll(w.children[mergerID])
	delete(w.children, mergerID)
}

func killAll(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// killNode schedules this process's own exit after delaySeconds, simulating
// a crash for fault-tolerance testing. A second request replaces any pending
// timer rather than stacking exits.
func (w *Worker) killNode(killTarget string, delaySeconds int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.killTimer != nil {
		w.killTimer.Stop()
	}
	log.Printf("execnode: scheduled to exit in %ds (target=%s)", delaySeconds, killTarget)
	w.killTimer = time.AfterFunc(time.Duration(delaySeconds)*time.Second, func() {
		os.Exit(1)
	})
}

func envPairs(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	return out
}
