// Package audit implements the relational audit sink of spec §4.9 and
// §6: a long-lived consumer persisting per-file sync records to sqlite
// with an HMAC-SHA256 row-chain, grounded on the teacher's
// internal/audit package (chain.go, buffered_logger.go, logger.go).
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/4nonx/syncd/internal/syncengine"
)

// Row is the persisted audit record shape (SPEC_FULL §3 AuditRecord).
type Row struct {
	ID         string
	Timestamp  time.Time
	Path       string
	SrcHash    string
	DstHash    string
	Size       int64
	UpdateKind string
	NodeID     string
	PrevHash   string
	RowHash    string
}

// EnsureSchema creates the audit_records table if it doesn't already
// exist, mirroring the teacher's ensureSchema/initSchema pattern.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_records (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			path        TEXT NOT NULL,
			src_hash    TEXT NOT NULL DEFAULT '',
			dst_hash    TEXT NOT NULL DEFAULT '',
			size        INTEGER NOT NULL DEFAULT 0,
			update_kind TEXT NOT NULL,
			node_id     TEXT NOT NULL,
			prev_hash   TEXT NOT NULL DEFAULT '',
			row_hash    TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

// Sink is the long-lived consumer of spec §4.9: implements
// syncengine.AuditSink, persisting each File record to sqlite and
// threading an HMAC chain through row_hash/prev_hash the way the
// teacher's BufferedLogger.writeDirect does. A write failure is logged
// and dropped, never retried (spec §7).
type Sink struct {
	db      *sql.DB
	nodeID  string
	hmacKey []byte
	log     *slog.Logger
	onEnd   func()

	mu       sync.Mutex
	prevHash string
}

// NewSink wires a Sink against an already-opened, schema-ensured db.
// hmacKey may be nil, in which case row_hash/prev_hash are left empty
// (chaining is an optional ambient feature, not required for a
// functioning audit trail).
func NewSink(db *sql.DB, nodeID string, hmacKey []byte, log *slog.Logger, onEnd func()) *Sink {
	return &Sink{db: db, nodeID: nodeID, hmacKey: hmacKey, log: log, onEnd: onEnd}
}

// File implements syncengine.AuditSink (spec §6 File record): persists
// one FileCopied/ChecksumUpdated outcome.
func (s *Sink) File(rec syncengine.AuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := Row{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Path:       rec.Path,
		SrcHash:    rec.SrcHash,
		DstHash:    rec.DstHash,
		Size:       rec.Size,
		UpdateKind: rec.UpdateKind.String(),
		NodeID:     s.nodeID,
		PrevHash:   s.prevHash,
	}
	row.RowHash = s.computeRowHash(row)

	if _, err := s.db.Exec(`
		INSERT INTO audit_records (id, timestamp, path, src_hash, dst_hash, size, update_kind, node_id, prev_hash, row_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Timestamp.Unix(), row.Path, row.SrcHash, row.DstHash, row.Size, row.UpdateKind, row.NodeID, row.PrevHash, row.RowHash,
	); err != nil {
		if s.log != nil {
			s.log.Error("audit: write failed", "path", rec.Path, "err", err)
		}
		return
	}
	s.prevHash = row.RowHash
}

// Error implements syncengine.AuditSink's bare per-file error record
// (spec §6 Error shape): logged only, not persisted — a relational
// schema for unstructured per-file errors would add little over the
// log line itself.
func (s *Sink) Error(err error) {
	if s.log != nil {
		s.log.Warn("audit: per-file error", "err", err)
	}
}

// End implements the EndSync fan-out of spec §4.9: signals the
// cluster/rendezvous coordinator that this run has finished.
func (s *Sink) End() {
	if s.onEnd != nil {
		s.onEnd()
	}
}

// computeRowHash mirrors the teacher's chain.computeRowHash: an
// HMAC-SHA256 over the row's fields chained to the previous row's hash,
// making any retroactive edit to the table detectable. Returns "" when
// no key is configured, matching the teacher's "chaining is optional"
// behavior.
func (s *Sink) computeRowHash(r Row) string {
	if len(s.hmacKey) == 0 {
		return ""
	}
	msg := fmt.Sprintf("%s|%d|%s|%s|%s|%d|%s|%s",
		r.PrevHash, r.Timestamp.Unix(), r.Path, r.SrcHash, r.DstHash, r.Size, r.UpdateKind, r.NodeID)
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
