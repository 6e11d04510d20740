package coordinator

import (
	"os"

	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// maybeKillNode writes a witness file recording which hosts this dispatch
// landed on, then — once per coordinator lifetime — sends a kill-node
// request to whichever worker cfg.KillTarget names, so a fault-injection
// test can kill a live worker at a reproducible point. Mirrors
// WorkersManager.log_node_ip and handle_kill.
func (m *Manager) maybeKillNode(placements []Placement) error {
	if err := m.logNodeIP(placements); err != nil {
		return err
	}
	if m.cfg.KillTarget == "" || m.killNodeSent {
		return nil
	}

	var target *Placement
	for i := range placements {
		isMerger := placements[i].Subgraph.Merger
		if (m.cfg.KillTarget == "merger") == isMerger {
			target = &placements[i]
			break
		}
	}
	if target == nil {
		return dserrors.InvalidState("coordinator", "no worker matches kill_target="+m.cfg.KillTarget)
	}

	if m.cfg.KillWitnessPath != "" {
		if err := os.WriteFile(m.cfg.KillWitnessPath, []byte(target.Worker.Host()+"\n"), 0o644); err != nil {
			return dserrors.Internal("coordinator: write kill witness", err)
		}
	}
	if err := target.Worker.SendKillNode(m.cfg.KillTarget, 0); err != nil {
		return err
	}
	m.killNodeSent = true
	return nil
}

// logNodeIP appends the merger worker's host and one regular worker's host
// to the witness file, independent of whether a kill is actually requested
// this run — later tooling reads it to know which hosts to inspect after a
// fault-injection run. Mirrors WorkersManager.log_node_ip.
func (m *Manager) logNodeIP(placements []Placement) error {
	if m.cfg.KillWitnessPath == "" {
		return nil
	}
	var mergerHost, regularHost string
	for _, p := range placements {
		if p.Subgraph.Merger && mergerHost == "" {
			mergerHost = p.Worker.Host()
		}
		if !p.Subgraph.Merger && regularHost == "" {
			regularHost = p.Worker.Host()
		}
	}
	f, err := os.OpenFile(m.cfg.KillWitnessPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return dserrors.Internal("coordinator: open kill witness", err)
	}
	defer f.Close()
	if mergerHost != "" {
		if _, err := f.WriteString(mergerHost + "\n"); err != nil {
			return dserrors.Internal("coordinator: write kill witness", err)
		}
	}
	if regularHost != "" {
		if _, err := f.WriteString(regularHost + "\n"); err != nil {
			return dserrors.Internal("coordinator: write kill witness", err)
		}
	}
	return nil
}
