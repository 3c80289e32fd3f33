// Package sqlite provides durable implementations of the medvault store
// contracts backed by a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS access_grants (
	grant_id    TEXT PRIMARY KEY,
	patient_id  TEXT NOT NULL,
	doctor_id   TEXT NOT NULL,
	wrapped_key BLOB NOT NULL,
	level       TEXT NOT NULL,
	granted_at  TIMESTAMP NOT NULL,
	expires_at  TIMESTAMP,
	is_active   INTEGER NOT NULL DEFAULT 1,
	revoked_at  TIMESTAMP
);

-- The partial unique index is what makes Insert an atomic
-- insert-if-no-active-grant: a second active grant for the same pair is
-- rejected by the engine, not by a racy read-then-write in Go.
CREATE UNIQUE INDEX IF NOT EXISTS idx_grants_active_pair
	ON access_grants(patient_id, doctor_id) WHERE is_active = 1;
CREATE INDEX IF NOT EXISTS idx_grants_patient ON access_grants(patient_id);
CREATE INDEX IF NOT EXISTS idx_grants_doctor ON access_grants(doctor_id);

CREATE TABLE IF NOT EXISTS breakglass_sessions (
	session_id    TEXT PRIMARY KEY,
	patient_id    TEXT NOT NULL,
	requested_by  TEXT NOT NULL,
	credential_id TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	latitude      REAL NOT NULL,
	longitude     REAL NOT NULL,
	accuracy_m    REAL NOT NULL DEFAULT 0,
	started_at    TIMESTAMP NOT NULL,
	expires_at    TIMESTAMP NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 1,
	state         TEXT NOT NULL,
	ended_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_patient ON breakglass_sessions(patient_id);

CREATE TABLE IF NOT EXISTS audit_log (
	log_id       TEXT PRIMARY KEY,
	patient_id   TEXT NOT NULL,
	action       TEXT NOT NULL,
	performed_by TEXT NOT NULL,
	ts           TIMESTAMP NOT NULL,
	details      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_audit_patient_ts ON audit_log(patient_id, ts DESC);
`

// Store owns the database handle shared by the grant, session and audit
// stores.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the vault database under dir/filename and
// applies the schema.
func Open(ctx context.Context, dir, filename string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, filename)
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open vault database at %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Grants returns the GrantStore view of the database.
func (s *Store) Grants() *GrantStore { return &GrantStore{db: s.db} }

// Sessions returns the SessionStore view of the database.
func (s *Store) Sessions() *SessionStore { return &SessionStore{db: s.db} }

// Audit returns the append-only AuditLog view of the database.
func (s *Store) Audit() *AuditLog { return &AuditLog{db: s.db} }
