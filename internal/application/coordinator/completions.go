package coordinator

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/dspash/dspash-go/internal/infrastructure/messaging/nats"
)

const completionNoticeSize = 17 // 1 marker byte + 16-byte uuid

// completionsNotifier is the minimal surface ServeCompletions needs to fan a
// completion out to the rest of the cluster; *nats.Publisher satisfies it.
type completionsNotifier interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// ServeCompletions runs the completion-notice listener: subgraph read-end
// clients connect and send a single 17-byte notice (a marker byte plus the
// uuid the coordinator handed them at dispatch time), and the manager
// retires that uuid from the outstanding set so recovery knows it need not
// re-execute the subgraph. Mirrors WorkersManager.__daemon /
// __manage_connection: a 1-second accept timeout so the loop can observe
// ctx cancellation between connections.
func (m *Manager) ServeCompletions(ctx context.Context, ln net.Listener, notifier completionsNotifier) error {
	type acceptResult struct {
		conn net.Conn
		err  error
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if tl, ok := ln.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(1 * time.Second))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Printf("coordinator: completion listener accept error: %v", err)
				continue
			}
		}

		go m.handleCompletionNotice(ctx, conn, notifier)
	}
}

func (m *Manager) handleCompletionNotice(ctx context.Context, conn net.Conn, notifier completionsNotifier) {
	defer conn.Close()

	buf := make([]byte, completionNoticeSize)
	n, err := readFull(conn, buf)
	if err != nil || n != completionNoticeSize {
		log.Printf("coordinator: completion notice expected %d bytes, got %d (err=%v)", completionNoticeSize, n, err)
		if m.metrics != nil {
			m.metrics.RecordCompletion("short-read")
		}
		return
	}

	readClient := buf[0] == 0
	if !readClient {
		// Write-end clients also touch this socket in the original protocol
		// but carry no bookkeeping obligation; only read-end completions
		// retire a uuid.
		return
	}

	id, err := uuid.FromBytes(buf[1:])
	if err != nil {
		log.Printf("coordinator: completion notice carried an invalid uuid: %v", err)
		if m.metrics != nil {
			m.metrics.RecordCompletion("bad-uuid")
		}
		return
	}

	m.mu.Lock()
	graphID, ok := m.uuidToGraph[id]
	if !ok {
		m.mu.Unlock()
		log.Printf("coordinator: completion notice for unknown uuid %s", id)
		if m.metrics != nil {
			m.metrics.RecordCompletion("unknown-uuid")
		}
		return
	}
	remaining := m.graphToUUIDs[graphID]
	for i, u := range remaining {
		if u == id {
			remaining = append(remaining[:i], remaining[i+1:]...)
			break
		}
	}
	m.graphToUUIDs[graphID] = remaining
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordCompletion("")
	}
	if notifier != nil {
		_ = notifier.Publish(ctx, "dspash.completions", map[string]string{
			"uuid":  id.String(),
			"graph": graphID,
		})
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

var _ completionsNotifier = (*nats.Publisher)(nil)
