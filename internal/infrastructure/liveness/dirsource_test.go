package liveness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirSourceHostsListsSubdirectoriesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "datanode1"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "datanode2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-host.txt"), []byte("x"), 0o644))

	src := NewDirSource(dir)
	hosts, err := src.Hosts(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"datanode1", "datanode2"}, hosts)
}
