package coordinator

import "context"

// PlacementRecord is the audit-sink projection of a Placement: just enough
// to log who ran what, without coupling the sink to *wire.WorkerConn or
// *ir.Subgraph.
type PlacementRecord struct {
	SubgraphID string
	WorkerHost string
	Merger     bool
}

// AuditSink durably records dispatch and recovery activity. Implementations
// must not block the reschedule_lock for long — the manager calls these
// synchronously while mu is held.
type AuditSink interface {
	RecordDispatch(ctx context.Context, mergerID string, entries []PlacementRecord) error
	RecordRecovery(ctx context.Context, addr string, ftMode FTMode, resubmittedSubgraphs int) error
}

func placementRecords(placements []Placement) []PlacementRecord {
	out := make([]PlacementRecord, 0, len(placements))
	for _, p := range placements {
		out = append(out, PlacementRecord{
			SubgraphID: p.Subgraph.ID,
			WorkerHost: p.Worker.Host(),
			Merger:     p.Subgraph.Merger,
		})
	}
	return out
}
