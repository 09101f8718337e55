package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	migrationsDir     = filepath.Join("..", "..", "db", "migrations")
	migrationFileName = regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.(up|down)\.sql$`)
)

// Tables the Postgres store reads and writes.
var storeTables = []string{"users", "spaces", "space_acls", "space_comments", "space_entities", "space_visits"}

// openTestDB connects to SPACES_TEST_DATABASE_URL with an empty public
// schema, or skips the test.
func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SPACES_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SPACES_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db, ctx
}

func migrationFiles(t *testing.T, direction string) []string {
	t.Helper()
	names, err := fs.Glob(os.DirFS(migrationsDir), "*."+direction+".sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	sort.Strings(names)
	return names
}

func TestReadMigrationsOrdersUpFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("CREATE TABLE b ();")},
		"0001_a.up.sql":   {Data: []byte("CREATE TABLE a ();")},
		"0001_a.down.sql": {Data: []byte("DROP TABLE a;")},
		"README.md":       {Data: []byte("notes")},
	}
	got, err := ReadMigrations(fsys)
	if err != nil {
		t.Fatalf("ReadMigrations() error = %v", err)
	}
	if len(got) != 2 || got[0].Version != "0001_a.up.sql" || got[1].Version != "0002_b.up.sql" {
		t.Fatalf("unexpected migrations %+v", got)
	}

	fsys["0003_empty.up.sql"] = &fstest.MapFile{Data: []byte("  \n")}
	if _, err := ReadMigrations(fsys); err == nil {
		t.Fatalf("expected an error for an empty migration")
	}
}

func TestMigrationFilesArePairedAndContiguous(t *testing.T) {
	ups := migrationFiles(t, "up")
	downs := migrationFiles(t, "down")
	if len(ups) == 0 {
		t.Fatal("no migrations discovered")
	}
	if len(ups) != len(downs) {
		t.Fatalf("expected one down per up, got %d up and %d down", len(ups), len(downs))
	}

	for i, up := range ups {
		match := migrationFileName.FindStringSubmatch(up)
		if match == nil {
			t.Fatalf("badly named migration %q", up)
		}
		if want := fmt.Sprintf("%04d", i+1); match[1] != want {
			t.Fatalf("expected version %s at position %d, got %s", want, i, match[1])
		}
		if down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"; downs[i] != down {
			t.Fatalf("expected %s to pair with %s, got %s", up, down, downs[i])
		}
	}
}

func TestMigrationsCreateStoreTables(t *testing.T) {
	var schema strings.Builder
	for _, name := range migrationFiles(t, "up") {
		contents, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		schema.Write(contents)
	}
	for _, table := range storeTables {
		if !strings.Contains(schema.String(), "CREATE TABLE "+table+" (") {
			t.Fatalf("no migration creates table %s", table)
		}
	}
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)

	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply up migrations: %v", err)
	}
	assertTables(t, ctx, db, true)

	downs := migrationFiles(t, "down")
	for i := len(downs) - 1; i >= 0; i-- {
		contents, err := os.ReadFile(filepath.Join(migrationsDir, downs[i]))
		if err != nil {
			t.Fatalf("read %s: %v", downs[i], err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			t.Fatalf("apply %s: %v", downs[i], err)
		}
	}
	assertTables(t, ctx, db, false)

	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("reapply up migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("applying twice should be a no-op: %v", err)
	}
	assertTables(t, ctx, db, true)
}

func assertTables(t *testing.T, ctx context.Context, db *sql.DB, present bool) {
	t.Helper()
	for _, table := range storeTables {
		var exists bool
		err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema='public' AND table_name=$1)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if exists != present {
			t.Fatalf("table %s: exists=%v, want %v", table, exists, present)
		}
	}
}
