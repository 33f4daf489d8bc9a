package audit

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/4nonx/syncd/internal/syncengine"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return db
}

func TestSink_File_PersistsRowAndChainsHash(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db, "node-a", []byte("test-hmac-key"), nil, nil)

	sink.File(syncengine.AuditRecord{Path: "a.txt", SrcHash: "h1", DstHash: "h1", Size: 10, UpdateKind: syncengine.FileCopied})
	sink.File(syncengine.AuditRecord{Path: "b.txt", SrcHash: "h2", DstHash: "h2", Size: 20, UpdateKind: syncengine.ChecksumUpdated})

	rows, err := db.Query(`SELECT path, prev_hash, row_hash FROM audit_records ORDER BY rowid`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var paths []string
	var prevHashes, rowHashes []string
	for rows.Next() {
		var path, prev, row string
		if err := rows.Scan(&path, &prev, &row); err != nil {
			t.Fatalf("scan: %v", err)
		}
		paths = append(paths, path)
		prevHashes = append(prevHashes, prev)
		rowHashes = append(rowHashes, row)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(paths))
	}
	if prevHashes[0] != "" {
		t.Fatalf("first row's prev_hash should be empty, got %q", prevHashes[0])
	}
	if prevHashes[1] != rowHashes[0] {
		t.Fatalf("second row's prev_hash %q should equal first row's row_hash %q", prevHashes[1], rowHashes[0])
	}
	if rowHashes[0] == "" || rowHashes[1] == "" {
		t.Fatalf("row_hash should be populated when an hmac key is configured")
	}
}

func TestSink_File_NoChainWithoutKey(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db, "node-a", nil, nil, nil)
	sink.File(syncengine.AuditRecord{Path: "a.txt", UpdateKind: syncengine.FileCopied})

	var rowHash string
	if err := db.QueryRow(`SELECT row_hash FROM audit_records LIMIT 1`).Scan(&rowHash); err != nil {
		t.Fatalf("query: %v", err)
	}
	if rowHash != "" {
		t.Fatalf("row_hash = %q, want empty with no hmac key configured", rowHash)
	}
}

func TestSink_End_InvokesCallback(t *testing.T) {
	var called bool
	sink := NewSink(openTestDB(t), "node-a", nil, nil, func() { called = true })
	sink.End()
	if !called {
		t.Fatalf("expected onEnd to be invoked")
	}
}
