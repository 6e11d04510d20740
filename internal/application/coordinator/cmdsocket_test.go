package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dspash/dspash-go/internal/domain/ir"
	"github.com/dspash/dspash-go/internal/infrastructure/discovery"
	"github.com/dspash/dspash-go/internal/infrastructure/wire"
	"github.com/dspash/dspash-go/internal/pkg/eventbus"
)

func writeGraphFile(t *testing.T, dir string) string {
	t.Helper()
	g := buildLinearGraph(t)
	sg := &ir.Subgraph{Graph: g, ID: "main"}
	path := filepath.Join(dir, "graph.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, json.NewEncoder(f).Encode(sg.ToWire()))
	return path
}

func TestServeCommandsExecGraphRoundTrip(t *testing.T) {
	dir := t.TempDir()
	workerConn := startTestWorker(t)

	pool := wire.NewPool()
	pool.Add(workerConn)

	m := NewManager(pool, workerConn, Config{FTMode: FTDisabled}, &fakeDiscovery{}, eventbus.New(), testMetrics)

	graphFile := writeGraphFile(t, dir)
	functionsFile := filepath.Join(dir, "functions.sh")
	require.NoError(t, os.WriteFile(functionsFile, []byte("# no functions\n"), 0o644))

	ln, err := net.Listen("unix", filepath.Join(dir, "cmd.sock"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- m.ServeCommands(ctx, ln) }()

	conn, err := net.Dial("unix", filepath.Join(dir, "cmd.sock"))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("Exec-Graph: " + graphFile + " " + functionsFile + "\n"))
	require.NoError(t, err)

	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(reply, "OK "), "expected OK reply, got %q", reply)

	conn2, err := net.Dial("unix", filepath.Join(dir, "cmd.sock"))
	require.NoError(t, err)
	defer conn2.Close()
	_, err = conn2.Write([]byte("Done\n"))
	require.NoError(t, err)
	doneReply, err := bufio.NewReader(conn2).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\n", doneReply)

	select {
	case err := <-serveDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeCommands did not return after Done")
	}
}

var _ discovery.Client = &fakeDiscovery{}

func TestShellVarsFromEnvironIncludesProcessEnv(t *testing.T) {
	require.NoError(t, os.Setenv("DSPASH_TEST_VAR", "value"))
	defer os.Unsetenv("DSPASH_TEST_VAR")

	vars := shellVarsFromEnviron()
	require.Equal(t, "value", vars["DSPASH_TEST_VAR"])
}
