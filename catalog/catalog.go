// Package catalog is the relational side-store caching parsed NGDP
// catalog responses (versions, cdns, bgdl, blobs) and their row history,
// keyed by (remote, response_digest, row_number).
package catalog

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"keg/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS responses (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  remote TEXT NOT NULL,
  path TEXT NOT NULL,
  digest TEXT NOT NULL,
  source TEXT NOT NULL,
  fetched_at INTEGER NOT NULL,
  UNIQUE(remote, path, digest)
);
CREATE TABLE IF NOT EXISTS catalog_rows (
  remote TEXT NOT NULL,
  response_digest TEXT NOT NULL,
  row_number INTEGER NOT NULL,
  table_name TEXT NOT NULL,
  row_json TEXT NOT NULL,
  PRIMARY KEY (remote, response_digest, row_number, table_name)
);
`

// Source identifies how a cached response arrived.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceIngested Source = "ingested"
)

// Store is the SQLite-backed relational side-store.
type Store struct {
	db *sqlite.Database
}

// Open opens (creating if absent) the side-store database at path.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path, sqlite.Options{})
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	if _, err := db.Exec(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordResponse stores a raw response body's digest and provenance,
// returning the digest. Inserting the same (remote, path, digest) twice
// is a no-op: only new content advances fetched_at.
func (s *Store) RecordResponse(ctx context.Context, remote, path string, body []byte, source Source) (string, error) {
	sum := md5.Sum(body)
	digest := hex.EncodeToString(sum[:])
	_, err := s.db.Exec(ctx,
		`INSERT OR IGNORE INTO responses (remote, path, digest, source, fetched_at) VALUES (?, ?, ?, ?, ?)`,
		remote, path, digest, string(source), time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("catalog: record response: %w", err)
	}
	return digest, nil
}

// RecordRows stores the decoded rows of a response under table, replacing
// any rows previously recorded for the same (remote, digest, table).
func (s *Store) RecordRows(ctx context.Context, remote, digest, table string, rows []map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: record rows: %w", err)
	}
	for i, row := range rows {
		blob, err := json.Marshal(row)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("catalog: marshal row %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT OR REPLACE INTO catalog_rows (remote, response_digest, row_number, table_name, row_json) VALUES (?, ?, ?, ?, ?)`,
			remote, digest, i, table, string(blob)); err != nil {
			tx.Rollback()
			return fmt.Errorf("catalog: insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: record rows: %w", err)
	}
	return nil
}

// LatestDigest returns the digest of the most recently fetched response
// for (remote, path), the "latest digest with distinct content" that is
// authoritative for that path.
func (s *Store) LatestDigest(ctx context.Context, remote, path string) (string, bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT digest FROM responses WHERE remote = ? AND path = ? ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		remote, path)
	var digest string
	if err := row.Scan(&digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("catalog: latest digest: %w", err)
	}
	return digest, true, nil
}

// Rows returns the decoded rows recorded under (remote, digest, table),
// in row_number order.
func (s *Store) Rows(ctx context.Context, remote, digest, table string) ([]map[string]string, error) {
	rs, err := s.db.Query(ctx,
		`SELECT row_json FROM catalog_rows WHERE remote = ? AND response_digest = ? AND table_name = ? ORDER BY row_number`,
		remote, digest, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: rows: %w", err)
	}
	defer rs.Close()

	var rows []map[string]string
	for rs.Next() {
		var blob string
		if err := rs.Scan(&blob); err != nil {
			return nil, fmt.Errorf("catalog: scan row: %w", err)
		}
		var row map[string]string
		if err := json.Unmarshal([]byte(blob), &row); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("catalog: rows: %w", err)
	}
	return rows, nil
}

// LatestRows is RecordResponse's inverse for reads: the rows of the
// newest cached response for (remote, path), or ok=false if none exist.
func (s *Store) LatestRows(ctx context.Context, remote, path, table string) ([]map[string]string, bool, error) {
	digest, ok, err := s.LatestDigest(ctx, remote, path)
	if err != nil || !ok {
		return nil, false, err
	}
	rows, err := s.Rows(ctx, remote, digest, table)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}
