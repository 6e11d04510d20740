//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dspash/dspash-go/internal/application/coordinator"
)

// testPool is shared across every test in this file, created once in
// TestMain against a throwaway container.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dspash_test"),
		postgres.WithUsername("dspash"),
		postgres.WithPassword("dspash"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("postgres: failed to start container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("postgres: failed to get connection string: %v", err)
	}

	if err := Migrate(connStr); err != nil {
		log.Fatalf("postgres: failed to apply migrations: %v", err)
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("postgres: failed to create pool: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Printf("postgres: failed to terminate container: %v", err)
	}

	os.Exit(code)
}

func TestAuditRepository_RecordDispatchAndQuery(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(testPool)

	mergerID := "merger-" + t.Name()
	entries := []coordinator.PlacementRecord{
		{SubgraphID: "sg-1", WorkerHost: "w1:5000", Merger: false},
		{SubgraphID: "sg-2", WorkerHost: "w2:5000", Merger: true},
	}

	if err := repo.RecordDispatch(ctx, mergerID, entries); err != nil {
		t.Fatalf("RecordDispatch returned unexpected error: %v", err)
	}

	history, err := repo.PlacementsForMerger(ctx, mergerID, 10)
	if err != nil {
		t.Fatalf("PlacementsForMerger returned unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(history))
	}
}

func TestAuditRepository_RecordRecovery(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(testPool)

	if err := repo.RecordRecovery(ctx, "w1:5000", coordinator.FTBase, 3); err != nil {
		t.Fatalf("RecordRecovery returned unexpected error: %v", err)
	}

	var count int
	row := testPool.QueryRow(ctx, `SELECT COUNT(*) FROM recovery_events WHERE worker_host = $1`, "w1:5000")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to count recovery_events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recovery event, got %d", count)
	}
}
