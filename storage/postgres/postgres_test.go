package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkeep/ledgerkeep/storage"
	"github.com/ledgerkeep/ledgerkeep/storage/storagetest"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("LEDGERKEEP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGERKEEP_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not migrate schema: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStorage(t *testing.T) {
	pool := newTestPool(t)

	storagetest.Run(t, func(t *testing.T) storage.Repository {
		// Clean tables for test isolation.
		pool.Exec(context.Background(), "DELETE FROM credentials") //nolint:errcheck
		return NewRepository(pool)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	version, err := SchemaVersion(ctx, pool)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected schema version 2, got %d", version)
	}
}

func TestNameConstraint(t *testing.T) {
	pool := newTestPool(t)
	pool.Exec(context.Background(), "DELETE FROM credentials") //nolint:errcheck
	s := NewRepository(pool)

	rec := storagetest.NewRecord("user-42", "bad name!")
	if err := s.Create(context.Background(), rec); err == nil {
		t.Error("expected check constraint violation for invalid name")
	}
}

func TestNewRepositoryFromDSNLeavesSchemaCurrent(t *testing.T) {
	dsn := os.Getenv("LEDGERKEEP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGERKEEP_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}
	ctx := context.Background()

	s, err := NewRepositoryFromDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("NewRepositoryFromDSN failed: %v", err)
	}
	defer s.Close()

	version, err := SchemaVersion(ctx, s.Pool())
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected schema version 2 without a separate Migrate call, got %d", version)
	}
}
