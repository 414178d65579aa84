package database

import (
	"fmt"
)

// schemaStatements define the persisted layout: visitors keyed by a
// unique fingerprint, sessions keyed by the recorder-supplied session
// id, and an append-only list of opaque batch blobs per session.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS visitors (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		ip TEXT NOT NULL,
		country TEXT,
		region TEXT,
		city TEXT,
		latitude TEXT,
		longitude TEXT,
		timezone TEXT,
		isp TEXT,
		org TEXT,
		asn TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		visitor_id TEXT NOT NULL REFERENCES visitors(id),
		owner_id TEXT NOT NULL,
		url TEXT,
		event_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS session_batches (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		blob BLOB NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(session_id, seq)
	)`,
}

// Migrate creates the schema when it does not exist yet. Statements are
// idempotent so startup can always run this unconditionally.
func (db *DB) Migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
