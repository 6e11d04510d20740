package execnode

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspash/dspash-go/internal/infrastructure/wire"
)

func scriptWriterFor(t *testing.T, content string) ScriptWriter {
	return func(req wire.ExecGraphRequest) (string, error) {
		f, err := os.CreateTemp(t.TempDir(), "script-*.sh")
		require.NoError(t, err)
		_, err = f.WriteString(content)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		return f.Name(), nil
	}
}

func TestExecGraphStartsProcessAndTracksMerger(t *testing.T) {
	w := NewWorker("127.0.0.1", scriptWriterFor(t, "true\n"))

	err := w.execGraph(wire.ExecGraphRequest{MergerID: "sg0"})
	require.NoError(t, err)

	w.mu.Lock()
	cmds := w.children["sg0"]
	w.mu.Unlock()
	require.Len(t, cmds, 1)
}

func TestKillSubgraphsAllClearsEveryMerger(t *testing.T) {
	w := NewWorker("127.0.0.1", scriptWriterFor(t, "sleep 5\n"))
	require.NoError(t, w.execGraph(wire.ExecGraphRequest{MergerID: "sg0"}))
	require.NoError(t, w.execGraph(wire.ExecGraphRequest{MergerID: "sg1"}))

	w.killSubgraphs("", true)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Empty(t, w.children)
}

func TestServeHandlesExecGraphOverWire(t *testing.T) {
	w := NewWorker("127.0.0.1", scriptWriterFor(t, "true\n"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, wire.Message{
		Type:      wire.MsgExecGraph,
		ExecGraph: &wire.ExecGraphRequest{MergerID: "sg0"},
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.NotNil(t, resp.Ack)
	assert.True(t, resp.Ack.OK)
}
