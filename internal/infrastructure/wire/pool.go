package wire

import (
	"encoding/json"
	"os"
	"sync"

	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"

	"github.com/dspash/dspash-go/internal/domain/ir"
)

// ClusterConfig is the on-disk shape of $PASH_TOP/cluster.json: a flat map
// from worker name to its command-socket address.
type ClusterConfig struct {
	Workers map[string]struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"workers"`
}

// LoadClusterConfig reads and parses a cluster config file.
func LoadClusterConfig(path string) (ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClusterConfig{}, dserrors.Internal("wire: read cluster config", err)
	}
	var cfg ClusterConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ClusterConfig{}, dserrors.Internal("wire: parse cluster config", err)
	}
	return cfg, nil
}

// Pool is the registry of the cluster's worker connections. The coordinator
// entrypoint keeps the pseudo-worker representing the client's own shell
// (dspash's client_worker) outside the pool. Mirrors the original WorkersManager.workers list
// plus the teacher's worker.Registry's mutex-guarded map idiom.
type Pool struct {
	mu      sync.RWMutex
	workers map[string]*WorkerConn
	order   []string
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{workers: make(map[string]*WorkerConn)}
}

// Add registers w, replacing any existing connection with the same name.
func (p *Pool) Add(w *WorkerConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.workers[w.Name()]; !exists {
		p.order = append(p.order, w.Name())
	}
	p.workers[w.Name()] = w
}

// Get looks up a worker connection by name.
func (p *Pool) Get(name string) (*WorkerConn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.workers[name]
	return w, ok
}

// All returns every registered worker connection, in registration order.
func (p *Pool) All() []*WorkerConn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*WorkerConn, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.workers[name])
	}
	return out
}

// Online returns every worker currently marked online.
func (p *Pool) Online() []*WorkerConn {
	var out []*WorkerConn
	for _, w := range p.All() {
		if w.Online() {
			out = append(out, w)
		}
	}
	return out
}

// PickWorker selects the least-loaded online worker. Mirrors
// WorkersManager.get_worker: iterate online workers and keep the one with
// the fewest running processes. Each of criticalFIDs is checked with
// ir.IsAvailableOn using the candidate's own host as the producing host, so
// no online worker is rejected on fid grounds.
func (p *Pool) PickWorker(criticalFIDs []ir.FileID) (*WorkerConn, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *WorkerConn
	for _, name := range p.order {
		w := p.workers[name]
		if !w.Online() {
			continue
		}
		eligible := true
		for _, fid := range criticalFIDs {
			if !ir.IsAvailableOn(fid.Resource, w.Host(), w.Host()) {
				eligible = false
				break
			}
		}
		if !eligible {
			continue
		}
		if best == nil || w.RunningProcesses() < best.RunningProcesses() {
			best = w
		}
	}
	if best == nil {
		idents := make([]string, len(criticalFIDs))
		for i, fid := range criticalFIDs {
			idents[i] = fid.Ident
		}
		return nil, dserrors.NoEligibleWorker(idents)
	}
	return best, nil
}
