package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDBContainer wraps a PostgreSQL test container with connection pool.
//
// Provides:
//   - Isolated PostgreSQL instance with pgvector extension
//   - Connection pool with pgvector type codecs registered
//   - Automatic cleanup via cleanup function
type TestDBContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL container for testing with the pgvector
// extension and the project schema applied.
//
// Skips the test when Docker is unavailable is the caller's concern; here
// a failed container start fails the test so CI misconfiguration is loud.
func SetupTestDB(t *testing.T) (*TestDBContainer, func()) {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("policyfaq_test"),
		postgres.WithUsername("policyfaq_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	pool, err := newTestPool(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("Failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	container := &TestDBContainer{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}

	cleanup := func() {
		if pool != nil {
			pool.Close()
		}
		if pgContainer != nil {
			_ = pgContainer.Terminate(context.Background())
		}
	}

	return container, cleanup
}

// newTestPool creates a pool with pgvector type codecs, mirroring the
// production vecstore.NewPool wiring. Duplicated here to avoid an import
// cycle between testutil and vecstore.
func newTestPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// findProjectRoot finds the project root directory by looking for go.mod.
// This allows tests to run from any subdirectory and still find migration files.
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get current file path")
	}

	dir := filepath.Dir(filename)

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// runMigrations applies the up migrations from db/migrations in order.
// Each migration runs in its own transaction for atomicity. Production
// uses golang-migrate; this keeps test setup free of migration state tables.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	pattern := filepath.Join(projectRoot, "db", "migrations", "*.up.sql")
	migrationFiles, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("globbing migrations: %w", err)
	}
	if len(migrationFiles) == 0 {
		return fmt.Errorf("no migrations found at %s", pattern)
	}

	for _, migrationPath := range migrationFiles {
		// #nosec G304 -- migration paths come from the repo tree, not user input
		migrationSQL, err := os.ReadFile(migrationPath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", migrationPath, err)
		}
		if len(migrationSQL) == 0 {
			continue
		}

		err = func() error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return fmt.Errorf("failed to begin transaction for %s: %w", migrationPath, err)
			}

			committed := false
			defer func() {
				if !committed {
					_ = tx.Rollback(ctx)
				}
			}()

			if _, err := tx.Exec(ctx, string(migrationSQL)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", migrationPath, err)
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("failed to commit migration %s: %w", migrationPath, err)
			}
			committed = true
			return nil
		}()
		if err != nil {
			return err
		}
	}

	return nil
}
