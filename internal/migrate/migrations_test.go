package migrate_test

import (
	"context"
	"testing"

	"bookline/internal/db"
	"bookline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	ctx := context.Background()
	var version int
	if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}
	var applied int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM schema_version`).Scan(&applied); err != nil {
		t.Fatalf("count steps: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied steps = %d, want 1", applied)
	}
}
