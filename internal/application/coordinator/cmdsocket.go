package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dspash/dspash-go/internal/domain/ir"
)

// acceptPollInterval bounds how long Accept blocks before re-checking ctx,
// the same 1-second poll ServeCompletions uses so both listeners shut down
// promptly on cancellation without needing a dedicated goroutine per Accept.
const acceptPollInterval = time.Second

// ServeCommands runs the coordinator's command socket: a Unix domain
// listener accepting the line-oriented protocol the invoking shell speaks —
// "Exec-Graph: <graph-file> <functions-file>" and "Done". Mirrors
// WorkersManager.run's request dispatch loop.
func (m *Manager) ServeCommands(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	type deadliner interface {
		SetDeadline(time.Time) error
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if dl, ok := ln.(deadliner); ok {
			_ = dl.SetDeadline(time.Now().Add(acceptPollInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("coordinator: command socket accept error: %v", err)
			continue
		}

		done := m.handleCommand(ctx, conn)
		conn.Close()
		if done {
			return nil
		}
	}
}

// handleCommand processes exactly one command from conn and reports whether
// it was "Done" (the caller should stop serving).
func (m *Manager) handleCommand(ctx context.Context, conn net.Conn) bool {
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	line = strings.TrimRight(line, "\r\n")

	switch {
	case line == "Done":
		fmt.Fprint(conn, "OK\n")
		return true

	case strings.HasPrefix(line, "Exec-Graph:"):
		fields := strings.Fields(strings.TrimPrefix(line, "Exec-Graph:"))
		if len(fields) != 2 {
			fmt.Fprintf(conn, "ERR malformed Exec-Graph command: %q\n", line)
			return false
		}
		scriptPath, err := m.dispatchFromFiles(ctx, fields[0], fields[1])
		if err != nil {
			fmt.Fprintf(conn, "ERR %v\n", err)
			return false
		}
		fmt.Fprintf(conn, "OK %s\n", scriptPath)
		return false

	default:
		fmt.Fprintf(conn, "ERR unknown command: %q\n", line)
		return false
	}
}

// dispatchFromFiles loads the graph definition JSON at graphFile and the
// declared-functions source text at functionsFile, and dispatches them.
// Shell variables come from the coordinator process's own environment,
// since the command socket's caller is the invoking shell itself.
func (m *Manager) dispatchFromFiles(ctx context.Context, graphFile, functionsFile string) (string, error) {
	graphJSON, err := os.ReadFile(graphFile)
	if err != nil {
		return "", fmt.Errorf("read graph file: %w", err)
	}
	var def ir.GraphDefinition
	if err := json.Unmarshal(graphJSON, &def); err != nil {
		return "", fmt.Errorf("decode graph file: %w", err)
	}

	functionsBytes, err := os.ReadFile(functionsFile)
	if err != nil {
		return "", fmt.Errorf("read functions file: %w", err)
	}

	sg := ir.FromWire(def, ir.NewFileIDGen())

	result, err := m.Dispatch(ctx, sg.Graph, shellVarsFromEnviron(), string(functionsBytes))
	if err != nil {
		return "", err
	}
	return result.ScriptPath, nil
}

func shellVarsFromEnviron() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	return out
}
