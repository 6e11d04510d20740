package wire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	msg := Message{
		Type: MsgExecGraph,
		ExecGraph: &ExecGraphRequest{
			Functions: "declare -f foo",
			MergerID:  "sg3",
		},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- WriteFrame(client, msg) }()

	got, err := ReadFrame(server)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.Equal(t, MsgExecGraph, got.Type)
	require.NotNil(t, got.ExecGraph)
	assert.Equal(t, "sg3", got.ExecGraph.MergerID)
}

func TestWorkerConnSendRecv(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	wc := &WorkerConn{name: "w1", host: "127.0.0.1", port: 58000, conn: client}
	wc.SetOnline(true)

	go func() {
		msg, err := ReadFrame(server)
		if err != nil {
			return
		}
		_ = msg
		_ = WriteFrame(server, Message{Type: MsgAck, Ack: &AckResponse{OK: true, Msg: "ok"}})
	}()

	ack, err := wc.SendExecGraph(ExecGraphRequest{MergerID: "sg0"})
	require.NoError(t, err)
	assert.True(t, ack.OK)
}

func TestPoolPickWorkerLeastLoaded(t *testing.T) {
	pool := NewPool()
	a := &WorkerConn{name: "a", host: "host-a"}
	a.SetOnline(true)
	b := &WorkerConn{name: "b", host: "host-b"}
	b.SetOnline(true)
	b.IncLoad()

	pool.Add(a)
	pool.Add(b)

	picked, err := pool.PickWorker(nil)
	require.NoError(t, err)
	assert.Equal(t, "a", picked.Name())
}

func TestPoolPickWorkerNoneOnline(t *testing.T) {
	pool := NewPool()
	a := &WorkerConn{name: "a", host: "host-a"}
	pool.Add(a)

	_, err := pool.PickWorker(nil)
	assert.Error(t, err)
}

func TestDialUnreachableReturnsOfflineConn(t *testing.T) {
	wc, err := Dial("ghost", "127.0.0.1", 1, 50*time.Millisecond)
	assert.Error(t, err)
	assert.False(t, wc.Online())
}
