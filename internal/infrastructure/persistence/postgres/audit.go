package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dspash/dspash-go/internal/application/coordinator"
	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// Querier abstracts the pgx query methods the audit repository needs, so a
// *pgxpool.Pool or a pgx.Tx can both serve as db.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuditRepository is a durable log of every placement dispatch sent out and
// every recovery triggered, giving operators a trail independent of the
// in-memory manager state (the admin routes read that in-memory state, not
// this table). Satisfies coordinator.AuditSink.
type AuditRepository struct {
	db Querier
}

// NewAuditRepository wraps db (typically a *pgxpool.Pool) as an audit sink.
func NewAuditRepository(db Querier) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ coordinator.AuditSink = (*AuditRepository)(nil)

// RecordDispatch persists one row per placement in entries under mergerID.
func (r *AuditRepository) RecordDispatch(ctx context.Context, mergerID string, entries []coordinator.PlacementRecord) error {
	for _, e := range entries {
		_, err := r.db.Exec(ctx, `
			INSERT INTO placements (merger_id, subgraph_id, worker_host, is_merger)
			VALUES ($1, $2, $3, $4)
		`, mergerID, e.SubgraphID, e.WorkerHost, e.Merger)
		if err != nil {
			return dserrors.Internal("postgres: record placement", err)
		}
	}
	return nil
}

// RecordRecovery persists one row describing a completed recovery pass.
func (r *AuditRepository) RecordRecovery(ctx context.Context, addr string, ftMode coordinator.FTMode, resubmittedSubgraphs int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO recovery_events (worker_host, ft_mode, resubmitted_subgraphs)
		VALUES ($1, $2, $3)
	`, addr, string(ftMode), resubmittedSubgraphs)
	if err != nil {
		return dserrors.Internal("postgres: record recovery event", err)
	}
	return nil
}

// PlacementHistory is one row read back from the placements table.
type PlacementHistory struct {
	MergerID     string
	SubgraphID   string
	WorkerHost   string
	Merger       bool
	DispatchedAt string
}

// PlacementsForMerger returns the dispatch history for a merger region,
// most recent first.
func (r *AuditRepository) PlacementsForMerger(ctx context.Context, mergerID string, limit int) ([]PlacementHistory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT merger_id, subgraph_id, worker_host, is_merger, dispatched_at::text
		FROM placements
		WHERE merger_id = $1
		ORDER BY dispatched_at DESC
		LIMIT $2
	`, mergerID, limit)
	if err != nil {
		return nil, dserrors.Internal("postgres: query placement history", err)
	}
	defer rows.Close()

	var out []PlacementHistory
	for rows.Next() {
		var h PlacementHistory
		if err := rows.Scan(&h.MergerID, &h.SubgraphID, &h.WorkerHost, &h.Merger, &h.DispatchedAt); err != nil {
			return nil, dserrors.Internal("postgres: scan placement history row", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
