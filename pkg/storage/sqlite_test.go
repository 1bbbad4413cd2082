package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesSchemaAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deskpatrol.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO state_blobs(name, value, updated_at_ms) VALUES('marker', '{}', 1)`); err != nil {
		t.Fatalf("insert marker: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	if err := Ping(context.Background(), db); err != nil {
		t.Fatalf("ping: %v", err)
	}

	for _, table := range []string{"state_blobs", "qa_data", "doc_data", "usage_log"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}

	var value string
	if err := db.QueryRow(`SELECT value FROM state_blobs WHERE name='marker'`).Scan(&value); err != nil {
		t.Fatalf("marker row lost across reopen: %v", err)
	}
}
