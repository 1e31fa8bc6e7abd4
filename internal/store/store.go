// Package store persists capability snapshots as named baselines in a
// local SQLite database. Baselines make offline comparison possible:
// a snapshot captured in one CI run can be diffed against a later run
// without re-probing the older revision.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"mcpdrift/internal/snapshot"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Baseline describes one stored snapshot.
type Baseline struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	TestName  string `json:"testName"`
	Ref       string `json:"ref,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Store is the baseline database. Section payloads are canonical JSON
// compressed with zstd, so equal interface surfaces always produce
// identical stored bytes.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (or creates) the baseline database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(dataDir, "baselines.db"))
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: zstd decoder: %w", err)
	}

	s := &Store{db: db, enc: enc, dec: dec}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the database and releases the compressors.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS baselines (
			id         TEXT PRIMARY KEY,
			label      TEXT NOT NULL,
			test_name  TEXT NOT NULL,
			ref        TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE (label, test_name)
		);

		CREATE TABLE IF NOT EXISTS sections (
			baseline_id TEXT NOT NULL,
			name        TEXT NOT NULL,
			payload     BLOB NOT NULL,
			PRIMARY KEY (baseline_id, name),
			FOREIGN KEY (baseline_id) REFERENCES baselines(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_baselines_label ON baselines(label);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores a snapshot under (label, testName), replacing any existing
// baseline with the same coordinates. Returns the new baseline's id.
func (s *Store) Save(label, testName, ref string, snap *snapshot.Snapshot) (string, error) {
	if snap.Failed() {
		return "", fmt.Errorf("store: refusing to save a failed snapshot: %s", snap.Err)
	}

	blobs, err := snap.SectionBlobs()
	if err != nil {
		return "", fmt.Errorf("store: serialize sections: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM baselines WHERE label = ? AND test_name = ?`, label, testName); err != nil {
		return "", fmt.Errorf("store: replace baseline: %w", err)
	}

	id := uuid.NewString()
	if _, err := tx.Exec(
		`INSERT INTO baselines (id, label, test_name, ref) VALUES (?, ?, ?, ?)`,
		id, label, testName, ref,
	); err != nil {
		return "", fmt.Errorf("store: insert baseline: %w", err)
	}

	for name, blob := range blobs {
		if _, err := tx.Exec(
			`INSERT INTO sections (baseline_id, name, payload) VALUES (?, ?, ?)`,
			id, name, s.enc.EncodeAll(blob, nil),
		); err != nil {
			return "", fmt.Errorf("store: insert section %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit: %w", err)
	}
	return id, nil
}

// Load reconstructs the snapshot stored under (label, testName).
func (s *Store) Load(label, testName string) (*snapshot.Snapshot, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM baselines WHERE label = ? AND test_name = ?`, label, testName,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: no baseline %q for test %q", label, testName)
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup baseline: %w", err)
	}

	rows, err := s.db.Query(`SELECT name, payload FROM sections WHERE baseline_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("store: load sections: %w", err)
	}
	defer rows.Close()

	sections := make(map[string]interface{})
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("store: scan section: %w", err)
		}
		raw, err := s.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("store: decompress section %s: %w", name, err)
		}
		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("store: decode section %s: %w", name, err)
		}
		sections[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate sections: %w", err)
	}

	return snapshot.FromSections(sections), nil
}

// List returns all stored baselines, newest first.
func (s *Store) List() ([]Baseline, error) {
	rows, err := s.db.Query(
		`SELECT id, label, test_name, COALESCE(ref, ''), created_at
		 FROM baselines ORDER BY created_at DESC, label, test_name`)
	if err != nil {
		return nil, fmt.Errorf("store: list baselines: %w", err)
	}
	defer rows.Close()

	var out []Baseline
	for rows.Next() {
		var b Baseline
		if err := rows.Scan(&b.ID, &b.Label, &b.TestName, &b.Ref, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan baseline: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Delete removes every baseline stored under a label. Returns the number
// of baselines removed.
func (s *Store) Delete(label string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM baselines WHERE label = ?`, label)
	if err != nil {
		return 0, fmt.Errorf("store: delete baseline: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
