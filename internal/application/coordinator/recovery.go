package coordinator

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/dspash/dspash-go/internal/domain/ir"
	"github.com/dspash/dspash-go/internal/infrastructure/wire"
)

// OnAddrAdded flips the matching worker online. Registered as the liveness
// poller's add callback.
func (m *Manager) OnAddrAdded(addr string) {
	for _, w := range m.pool.All() {
		if w.Host() == addr {
			w.SetOnline(true)
		}
	}
}

// OnAddrRemoved flips the matching worker offline and, if fault tolerance
// is enabled, reschedules every subgraph it was hosting. Registered as the
// liveness poller's removal callback. Mirrors WorkersManager.addr_removed:
// recovery errors are logged and swallowed so one bad reschedule doesn't
// wedge the liveness poller.
func (m *Manager) OnAddrRemoved(addr string) {
	for _, w := range m.pool.All() {
		if w.Host() == addr {
			w.SetOnline(false)
		}
	}
	if m.cfg.FTMode == FTDisabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("coordinator: recovery panicked for %s: %v", addr, r)
		}
	}()

	var err error
	if m.cfg.FTMode == FTNaive {
		err = m.recoverNaive(context.Background(), addr)
	} else {
		err = m.recoverFrom(context.Background(), addr)
	}
	if err != nil {
		log.Printf("coordinator: recovery failed for %s: %v", addr, err)
	}
}

// recoverFrom implements base/optimized recovery: WorkersManager.handle_crash.
func (m *Manager) recoverFrom(ctx context.Context, addr string) error {
	toReexecute := make(map[string]bool)
	for _, p := range m.allPlacements {
		if p.Worker.Host() != addr {
			continue
		}
		if len(m.graphToUUIDs[p.Subgraph.ID]) == 0 {
			continue // already fully acknowledged, nothing to redo
		}
		toReexecute[p.Subgraph.ID] = true

		if p.Subgraph.Merger || p.MergerID != "" {
			mergerID := p.MergerID
			if p.Subgraph.Merger {
				mergerID = p.Subgraph.ID
			}
			if m.cfg.FTMode == FTBase {
				for _, w := range m.pool.All() {
					_ = w.SendKillSubgraphs(mergerID, false)
				}
			}
			for _, sid := range m.mergerToSubgraphs[mergerID] {
				toReexecute[sid] = true
			}
		}
	}

	for sid := range toReexecute {
		var ids []uuid.UUID
		for other, graphID := range m.uuidToGraph {
			if graphID == sid {
				ids = append(ids, other)
			}
		}
		m.graphToUUIDs[sid] = ids
	}

	if m.cfg.FTMode == FTOptimized && m.discovery != nil {
		var uuids []uuid.UUID
		for sid := range toReexecute {
			uuids = append(uuids, m.graphToUUIDs[sid]...)
		}
		indexes, err := m.discovery.FindPersistedOptimized(ctx, addr, uuids)
		if err == nil {
			persisted := make(map[string]bool)
			for _, idx := range indexes {
				if idx >= 0 && idx < len(uuids) {
					if sid, ok := m.uuidToGraph[uuids[idx]]; ok {
						persisted[sid] = true
					}
				}
			}
			for sid := range persisted {
				delete(toReexecute, sid)
			}
		}
	}

	var newPlacements []Placement
	kept := m.allPlacements[:0]
	for _, p := range m.allPlacements {
		if !toReexecute[p.Subgraph.ID] || p.Worker.Host() != addr {
			kept = append(kept, p)
			continue
		}
		critical := criticalFIDs(p.Subgraph)
		newWorker, err := m.pool.PickWorker(critical)
		if err != nil {
			return err
		}
		newWorker.IncLoad()
		np := Placement{Worker: newWorker, Subgraph: p.Subgraph, MergerID: p.MergerID}
		kept = append(kept, np)
		m.placementBySubgraph[p.Subgraph.ID] = &kept[len(kept)-1]
		newPlacements = append(newPlacements, np)
	}
	m.allPlacements = kept

	var sendErr error
	if m.cfg.FTMode == FTOptimized {
		sendErr = m.sendBatched(newPlacements, "", m.shellVarsFor(newPlacements), m.functionsFor(newPlacements))
	} else {
		for _, p := range newPlacements {
			req := wire.ExecGraphRequest{
				Graph:     p.Subgraph.ToWire(),
				ShellVars: m.mergerShellVars[p.MergerID],
				Functions: m.mergerFunctions[p.MergerID],
				MergerID:  p.MergerID,
			}
			if _, err := p.Worker.SendExecGraph(req); err != nil {
				sendErr = err
				break
			}
		}
	}
	m.recordRecovery(ctx, addr, len(newPlacements))
	return sendErr
}

// recoverNaive implements WorkersManager.handle_naive_crash: kill every
// process everywhere, then re-dispatch everything not already fully
// acknowledged, regardless of which host it was originally on.
func (m *Manager) recoverNaive(ctx context.Context, addr string) error {
	for _, w := range m.pool.All() {
		_ = w.SendKillSubgraphs("", true)
	}

	finished := make(map[string]bool)
	for mergerID, subIDs := range m.mergerToSubgraphs {
		if len(m.graphToUUIDs[mergerID]) > 0 {
			continue
		}
		finished[mergerID] = true
		for _, sid := range subIDs {
			finished[sid] = true
		}
	}

	var toRedispatch []Placement
	kept := m.allPlacements[:0]
	for _, p := range m.allPlacements {
		if finished[p.Subgraph.ID] {
			kept = append(kept, p)
			continue
		}
		worker := p.Worker
		if worker.Host() == addr {
			newWorker, err := m.pool.PickWorker(criticalFIDs(p.Subgraph))
			if err != nil {
				return err
			}
			newWorker.IncLoad()
			worker = newWorker
		}
		np := Placement{Worker: worker, Subgraph: p.Subgraph, MergerID: p.MergerID}
		kept = append(kept, np)
		m.placementBySubgraph[p.Subgraph.ID] = &kept[len(kept)-1]
		toRedispatch = append(toRedispatch, np)
	}
	m.allPlacements = kept

	var sendErr error
	for _, p := range toRedispatch {
		req := wire.ExecGraphRequest{
			Graph:     p.Subgraph.ToWire(),
			ShellVars: m.mergerShellVars[p.MergerID],
			Functions: m.mergerFunctions[p.MergerID],
			MergerID:  p.MergerID,
		}
		if _, err := p.Worker.SendExecGraph(req); err != nil {
			sendErr = err
			break
		}
	}
	m.recordRecovery(ctx, addr, len(toRedispatch))
	return sendErr
}

// recordRecovery persists a recovery event and bumps the recovery metrics,
// swallowing audit-sink errors so a down audit database can't block
// rescheduling itself.
func (m *Manager) recordRecovery(ctx context.Context, addr string, resubmitted int) {
	if m.metrics != nil {
		m.metrics.RecordRecovery(string(m.cfg.FTMode), 0, resubmitted)
	}
	if m.audit != nil {
		if err := m.audit.RecordRecovery(ctx, addr, m.cfg.FTMode, resubmitted); err != nil {
			log.Printf("coordinator: audit record recovery failed: %v", err)
		}
	}
}

func (m *Manager) shellVarsFor(placements []Placement) map[string]string {
	for _, p := range placements {
		if vars, ok := m.mergerShellVars[p.MergerID]; ok {
			return vars
		}
	}
	return nil
}

func (m *Manager) functionsFor(placements []Placement) string {
	for _, p := range placements {
		if fn, ok := m.mergerFunctions[p.MergerID]; ok {
			return fn
		}
	}
	return ""
}

// criticalFIDs returns the input FileIDs of sg's source nodes that are
// backed by the DFS rather than a node-local disk — the only fids that
// constrain which worker can safely take over the subgraph, since a
// DFS-backed file is the one kind of resource guaranteed to survive the
// crash of whichever host most recently touched it.
func criticalFIDs(sg *ir.Subgraph) []ir.FileID {
	var out []ir.FileID
	for _, n := range sg.SourceNodes() {
		for _, fid := range sg.NodeInputFIDs(n) {
			if ir.HasRemoteFileResource(fid.Resource) {
				out = append(out, fid)
			}
		}
	}
	return out
}
