package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the lookup tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	schema := `
		CREATE TABLE devices (
			id INTEGER PRIMARY KEY CHECK (id >= 0),
			location TEXT NOT NULL
		) STRICT;

		CREATE TABLE alert_rules (
			location TEXT NOT NULL,
			message_type TEXT NOT NULL,
			resource TEXT NOT NULL,
			PRIMARY KEY (location, message_type)
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func TestSQLiteRepository_LoadRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seed := newTestCatalog(t)
	if err := repo.ReplaceAll(ctx, seed); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	loaded, err := LoadRepository(ctx, repo)
	if err != nil {
		t.Fatalf("LoadRepository() error = %v", err)
	}

	if loc, ok := loaded.Location(3); !ok || loc != "Bar1" {
		t.Errorf("Location(3) = (%q, %v), want (Bar1, true)", loc, ok)
	}
	if res, ok := loaded.Resource("Bar1", "EMERGENCY"); !ok || res != "emergency1.snd" {
		t.Errorf("Resource(Bar1, EMERGENCY) = (%q, %v), want (emergency1.snd, true)", res, ok)
	}
	if d, r := loaded.Len(); d != 3 || r != 3 {
		t.Errorf("Len() = (%d, %d), want (3, 3)", d, r)
	}
}

func TestSQLiteRepository_ReplaceAllOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.ReplaceAll(ctx, newTestCatalog(t)); err != nil {
		t.Fatalf("first ReplaceAll() error = %v", err)
	}

	small, err := New([]Device{{ID: 5, Location: "Dock"}}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := repo.ReplaceAll(ctx, small); err != nil {
		t.Fatalf("second ReplaceAll() error = %v", err)
	}

	devices, err := repo.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != 5 {
		t.Errorf("ListDevices() = %+v, want only device 5", devices)
	}
	rules, err := repo.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("ListRules() = %+v, want empty", rules)
	}
}

func TestLoadRepository_DuplicateRuleInStorage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Distinct rows in SQL that collide after upper-casing.
	if _, err := db.Exec(`INSERT INTO alert_rules VALUES ('A', 'help', 'x'), ('A', 'HELP', 'y')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := LoadRepository(ctx, NewSQLiteRepository(db))
	if !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("LoadRepository() error = %v, want ErrDuplicateRule", err)
	}
}

type failingRepo struct{ err error }

func (f failingRepo) ListDevices(context.Context) ([]Device, error) { return nil, f.err }
func (f failingRepo) ListRules(context.Context) ([]Rule, error)     { return nil, nil }

func TestLoadRepository_PropagatesError(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := LoadRepository(context.Background(), failingRepo{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("LoadRepository() error = %v, want wrapped %v", err, boom)
	}
}
