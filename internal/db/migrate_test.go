package db

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestExtractUp(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	got := strings.TrimSpace(ExtractUp(content))
	if got != "CREATE TABLE a (id INTEGER);" {
		t.Fatalf("got %q", got)
	}
	if got := ExtractUp("SELECT 1;"); got != "SELECT 1;" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestMigrationFilesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql": {Data: []byte("SELECT 2;")},
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"README.md": {Data: []byte("skip")},
		"010_c.sql": {Data: []byte("SELECT 3;")},
	}
	got, err := migrationFiles(fsys)
	if err != nil {
		t.Fatalf("migration files: %v", err)
	}
	want := []string{"001_a.sql", "002_b.sql", "010_c.sql"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestReadUpRejectsEmpty(t *testing.T) {
	fsys := fstest.MapFS{"001_empty.sql": {Data: []byte("-- +migrate Up\n\n-- +migrate Down\nDROP TABLE x;")}}
	if _, err := readUp(fsys, "001_empty.sql"); err == nil {
		t.Fatalf("expected empty migration error")
	}
}
