// Package coordinator implements the worker manager: the stateful service
// that splits an incoming IR graph, places its pieces on workers, tracks
// outstanding completion notices, and reschedules work when a worker's
// liveness poller reports it gone. Ported from the original dspash
// coordinator's WorkersManager class.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dspash/dspash-go/internal/domain/ir"
	"github.com/dspash/dspash-go/internal/domain/rewrite"
	"github.com/dspash/dspash-go/internal/domain/split"
	"github.com/dspash/dspash-go/internal/infrastructure/discovery"
	"github.com/dspash/dspash-go/internal/infrastructure/monitoring"
	"github.com/dspash/dspash-go/internal/infrastructure/wire"
	"github.com/dspash/dspash-go/internal/pkg/eventbus"
	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// FTMode selects the fault-tolerance strategy used when a worker's liveness
// poller reports an address gone.
type FTMode string

const (
	FTDisabled  FTMode = "disabled"
	FTNaive     FTMode = "naive"
	FTBase      FTMode = "base"
	FTOptimized FTMode = "optimized"
)

// Placement pairs a live subgraph with the worker connection running it,
// and the merger region it belongs to (its own id, if it is the merger).
type Placement struct {
	Worker   *wire.WorkerConn
	Subgraph *ir.Subgraph
	MergerID string
}

// Config holds the manager's fixed, request-independent settings.
type Config struct {
	FTMode          FTMode
	KillTarget      string // "", "merger", or "regular" — which role to crash for testing
	KillWitnessPath string
	BasePort        int
}

// Manager is the coordinator's worker-manager state machine: dispatch,
// the completion listener, liveness callbacks, and crash recovery all
// serialize through mu (the original's reschedule_lock).
type Manager struct {
	pool         *wire.Pool
	clientWorker *wire.WorkerConn
	cfg          Config
	ports        *rewrite.PortAllocator

	discovery discovery.Client
	events    *eventbus.EventBus
	metrics   *monitoring.Metrics
	audit     AuditSink

	mu sync.Mutex

	allPlacements       []Placement
	placementBySubgraph map[string]*Placement
	mergerShellVars     map[string]map[string]string
	mergerFunctions     map[string]string
	uuidToGraph         map[uuid.UUID]string
	graphToUUIDs        map[string][]uuid.UUID
	mergerToSubgraphs   map[string][]string
	subgraphToMerger    map[string]string

	killNodeSent bool
}

// NewManager constructs a Manager. pool must already contain every worker
// from the cluster config; clientWorker is the pseudo-worker representing
// the invoking shell itself (dspash's client_worker). Dispatch does not
// split the main graph into reader/writer halves and places nothing on
// clientWorker; the whole main graph goes to the file writeScript writes.
func NewManager(pool *wire.Pool, clientWorker *wire.WorkerConn, cfg Config, disc discovery.Client, events *eventbus.EventBus, metrics *monitoring.Metrics) *Manager {
	base := cfg.BasePort
	if base == 0 {
		base = rewrite.DefaultBasePort
	}
	return &Manager{
		pool:                pool,
		clientWorker:        clientWorker,
		cfg:                 cfg,
		ports:               rewrite.NewPortAllocator(base),
		discovery:           disc,
		events:              events,
		metrics:             metrics,
		placementBySubgraph: make(map[string]*Placement),
		mergerShellVars:     make(map[string]map[string]string),
		mergerFunctions:     make(map[string]string),
		uuidToGraph:         make(map[uuid.UUID]string),
		graphToUUIDs:        make(map[string][]uuid.UUID),
		mergerToSubgraphs:   make(map[string][]string),
		subgraphToMerger:    make(map[string]string),
	}
}

// WithAudit attaches a durable audit sink to an already-constructed Manager.
// Optional: a nil audit sink (the default) just skips the persistence call.
func (m *Manager) WithAudit(audit AuditSink) *Manager {
	m.audit = audit
	return m
}

type poolPicker struct{ pool *wire.Pool }

func (p poolPicker) Pick(criticalFIDs []ir.FileID) (rewrite.Worker, error) {
	w, err := p.pool.PickWorker(criticalFIDs)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// toCoordinatorPlacements narrows rewrite.Placement's Worker interface back
// to the concrete *wire.WorkerConn every coordinator Placement carries. The
// assertion cannot fail in practice: poolPicker only ever hands rewrite
// *wire.WorkerConn values.
func toCoordinatorPlacements(rps []rewrite.Placement) ([]Placement, error) {
	out := make([]Placement, 0, len(rps))
	for _, rp := range rps {
		wc, ok := rp.Worker.(*wire.WorkerConn)
		if !ok {
			return nil, dserrors.Internal("coordinator: placement worker is not a *wire.WorkerConn", nil)
		}
		out = append(out, Placement{Worker: wc, Subgraph: rp.Subgraph})
	}
	return out, nil
}

// DispatchResult is what Dispatch hands back to the command-socket caller:
// the path of the shell script the invoking shell must source itself, plus
// the uuids the caller should expect completion notices for.
type DispatchResult struct {
	ScriptPath string
	UUIDs      []uuid.UUID
}

// Dispatch splits graph, places every resulting subgraph on a worker, logs
// the placement for recovery and kill-test bookkeeping, and sends each
// subgraph to its worker. Mirrors WorkersManager.handle_exec_graph.
func (m *Manager) Dispatch(ctx context.Context, graph *ir.Graph, shellVars map[string]string, functions string) (DispatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subgraphs, edgeFifo := split.Split(graph)
	if err := split.Validate(graph, subgraphs); err != nil {
		return DispatchResult{}, err
	}

	main, rewritten, uuidToGraphs, err := rewrite.Rewrite(subgraphs, edgeFifo, graph.Gen(), m.ports, poolPicker{m.pool})
	if err != nil {
		return DispatchResult{}, err
	}
	placements, err := toCoordinatorPlacements(rewritten)
	if err != nil {
		return DispatchResult{}, err
	}

	scriptPath, err := writeScript(main)
	if err != nil {
		return DispatchResult{}, err
	}

	if err := m.maybeKillNode(placements); err != nil {
		return DispatchResult{}, err
	}

	mergerID, err := findMerger(placements)
	if err != nil {
		return DispatchResult{}, err
	}

	var uuids []uuid.UUID
	if m.cfg.FTMode != FTDisabled {
		uuids = m.recordPlacements(mergerID, placements, uuidToGraphs, shellVars, functions)
	}

	if err := m.send(placements, mergerID, shellVars, functions); err != nil {
		return DispatchResult{}, err
	}

	if m.events != nil {
		_ = m.events.Publish(ctx, dispatchedEvent{mergerID: mergerID, count: len(placements)})
	}
	if m.metrics != nil {
		m.metrics.DispatchTotal.Inc()
		m.metrics.PlacementsGauge.Add(float64(len(placements)))
	}
	if m.audit != nil {
		if err := m.audit.RecordDispatch(ctx, mergerID, placementRecords(placements)); err != nil {
			log.Printf("coordinator: audit record dispatch failed: %v", err)
		}
	}

	return DispatchResult{ScriptPath: scriptPath, UUIDs: uuids}, nil
}

// findMerger returns the one subgraph id marked Merger among placements, or
// "" if none is (a pipeline with no fan-in has no merger region).
func findMerger(placements []Placement) (string, error) {
	found := ""
	count := 0
	for _, p := range placements {
		if p.Subgraph.Merger {
			found = p.Subgraph.ID
			count++
		}
	}
	if count > 1 {
		return "", dserrors.InvalidState("coordinator", fmt.Sprintf("dispatch produced %d merger subgraphs, want at most 1", count))
	}
	return found, nil
}

// recordPlacements logs every placement for recovery bookkeeping and fans
// the rewriter's per-pipe uuids into graphToUUIDs/uuidToGraph keyed by the
// producer subgraph: a subgraph is fully acknowledged, and so need not be
// re-executed on a crash, only once every pipe it writes to has reported
// its completion notice.
func (m *Manager) recordPlacements(mergerID string, placements []Placement, uuidToGraphs map[uuid.UUID]rewrite.GraphPair, shellVars map[string]string, functions string) []uuid.UUID {
	var uuids []uuid.UUID
	if mergerID != "" {
		m.mergerShellVars[mergerID] = shellVars
		m.mergerFunctions[mergerID] = functions
		var subIDs []string
		for _, p := range placements {
			subIDs = append(subIDs, p.Subgraph.ID)
			m.subgraphToMerger[p.Subgraph.ID] = mergerID
		}
		m.mergerToSubgraphs[mergerID] = subIDs
	}

	for i := range placements {
		p := placements[i]
		p.MergerID = mergerID
		m.allPlacements = append(m.allPlacements, p)
		m.placementBySubgraph[p.Subgraph.ID] = &m.allPlacements[len(m.allPlacements)-1]
	}

	for id, pair := range uuidToGraphs {
		uuids = append(uuids, id)
		m.uuidToGraph[id] = pair.Producer
		m.graphToUUIDs[pair.Producer] = append(m.graphToUUIDs[pair.Producer], id)
	}
	return uuids
}

// send dispatches every placement's subgraph to its worker concurrently —
// the original's handle_exec_graph sends the whole batch of worker sockets
// in a tight loop with no per-send wait, which under Go's blocking
// SendExecGraph is naturally expressed as a fan-out over an errgroup rather
// than a sequential loop.
func (m *Manager) send(placements []Placement, mergerID string, shellVars map[string]string, functions string) error {
	if m.cfg.FTMode == FTOptimized {
		return m.sendBatched(placements, mergerID, shellVars, functions)
	}

	var g errgroup.Group
	for _, p := range placements {
		p := p
		if !p.Worker.Online() {
			continue
		}
		g.Go(func() error {
			req := wire.ExecGraphRequest{
				Graph:     p.Subgraph.ToWire(),
				ShellVars: shellVars,
				Functions: functions,
				MergerID:  mergerID,
			}
			_, err := p.Worker.SendExecGraph(req)
			return err
		})
	}
	return g.Wait()
}

func (m *Manager) sendBatched(placements []Placement, mergerID string, shellVars map[string]string, functions string) error {
	byWorker := make(map[*wire.WorkerConn]*wire.BatchExecGraphRequest)
	var order []*wire.WorkerConn
	for _, p := range placements {
		wc := p.Worker
		if !wc.Online() {
			continue
		}
		req, exists := byWorker[wc]
		if !exists {
			req = &wire.BatchExecGraphRequest{ShellVars: shellVars, Functions: functions, MergerID: mergerID}
			byWorker[wc] = req
			order = append(order, wc)
		}
		if p.Subgraph.Merger {
			req.Mergers = append(req.Mergers, p.Subgraph.ToWire())
		} else {
			req.Regulars = append(req.Regulars, p.Subgraph.ToWire())
		}
	}
	for _, wc := range order {
		if _, err := wc.SendBatchExecGraph(*byWorker[wc], true); err != nil {
			return err
		}
	}
	return nil
}

// writeScript serializes main's wire form to a temp file representing the
// shell script the invoking shell must source to drive the remote pipes'
// local ends. Converting a Subgraph to actual POSIX shell text is PaSh's
// own shell-code generator and out of scope here; the serialized
// GraphDefinition is what a downstream code generator would consume.
func writeScript(main *ir.Subgraph) (string, error) {
	f, err := os.CreateTemp("", "dspash-main-*.json")
	if err != nil {
		return "", dserrors.Internal("coordinator: create script file", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(main.ToWire()); err != nil {
		return "", dserrors.Internal("coordinator: write script file", err)
	}
	return f.Name(), nil
}

type dispatchedEvent struct {
	mergerID string
	count    int
}

func (e dispatchedEvent) EventType() string     { return "coordinator.dispatched" }
func (e dispatchedEvent) AggregateID() string   { return e.mergerID }
func (e dispatchedEvent) AggregateType() string { return "dispatch" }
