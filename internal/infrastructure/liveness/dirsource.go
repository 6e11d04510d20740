package liveness

import (
	"context"
	"os"
)

// DirSource implements Source by listing the subdirectories of an HDFS
// datanode directory ($HDFS_DATANODE_DIR): each live datanode maintains its
// own subdirectory there, named after its host, so the set of entries is
// the set of hosts currently registered with the DFS.
type DirSource struct {
	dir string
}

// NewDirSource builds a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Hosts(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			hosts = append(hosts, e.Name())
		}
	}
	return hosts, nil
}
