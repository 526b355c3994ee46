package migrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunCreatesRecordTables(t *testing.T) {
	db := openTestDB(t)

	if err := NewRunner(db).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, table := range []string{"records", LedgerTable, "api_requests", "db_operations", "error_records"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRunner(db)

	if err := r.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := r.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	latest, err := Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	cur, pending, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != latest || pending != 0 {
		t.Errorf("expected version=%d pending=0, got version=%d pending=%d", latest, cur, pending)
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + LedgerTable).Scan(&rows); err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if rows != latest {
		t.Errorf("ledger rows = %d, want %d", rows, latest)
	}
}

func TestStatusBeforeRun(t *testing.T) {
	db := openTestDB(t)

	latest, err := Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != 2 {
		t.Fatalf("Latest = %d, want 2", latest)
	}

	cur, pending, err := NewRunner(db).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 0 || pending != latest {
		t.Errorf("expected version=0 pending=%d, got version=%d pending=%d", latest, cur, pending)
	}
}

func TestRunRejectsModifiedStep(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRunner(db)

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := db.Exec("UPDATE "+LedgerTable+" SET checksum = 'stale' WHERE version = 1"); err != nil {
		t.Fatalf("tamper ledger: %v", err)
	}

	if err := r.Run(ctx); !errors.Is(err, ErrModified) {
		t.Fatalf("Run err = %v, want ErrModified", err)
	}
	if _, _, err := r.Status(ctx); !errors.Is(err, ErrModified) {
		t.Fatalf("Status err = %v, want ErrModified", err)
	}
}

func TestSteps(t *testing.T) {
	steps, err := Steps()
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	for i, s := range steps {
		if s.Version != i+1 {
			t.Errorf("step %d has version %d", i, s.Version)
		}
		if len(s.Checksum) != 64 {
			t.Errorf("step %s checksum %q is not sha256 hex", s.File, s.Checksum)
		}
	}

	steps[0].Version = 99
	again, _ := Steps()
	if again[0].Version != 1 {
		t.Fatal("Steps should return a copy")
	}
}

func TestVersionOf(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		ok      bool
		wantErr bool
	}{
		{"001_create_records.sql", 1, true, false},
		{"12_x.sql", 12, true, false},
		{"readme.sql", 0, false, false},
		{"abc_x.sql", 0, false, true},
		{"000_x.sql", 0, false, true},
	}
	for _, tt := range tests {
		got, ok, err := versionOf(tt.name)
		if (err != nil) != tt.wantErr || ok != tt.ok || got != tt.want {
			t.Errorf("versionOf(%q) = %d, %v, %v", tt.name, got, ok, err)
		}
	}
}
