// Package sqlite stores the dedup ledger in a SQLite database file. Each Put
// is a single upsert statement, so it is atomic on its own.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/collapsinghierarchy/repsync/model"
	"github.com/collapsinghierarchy/repsync/store"

	_ "modernc.org/sqlite"
)

const busyTimeoutMs = 5000

type sqliteStore struct {
	db   *sql.DB
	file string
}

// Open opens (creating if needed) the database file at path. The ledger
// table itself is only created by Init.
func Open(path string) (store.Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve db path: %v", model.ErrStorage, err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db directory: %v", model.ErrStorage, err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(absPath)))
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", model.ErrStorage, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", model.ErrStorage, err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set busy timeout: %v", model.ErrStorage, err)
	}
	// one writer; keeps the connection that set the pragma
	db.SetMaxOpenConns(1)

	return &sqliteStore{db: db, file: absPath}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ledger (
		key TEXT PRIMARY KEY,
		local_id TEXT NOT NULL,
		remote_id TEXT
	)`)
	if err != nil {
		return fmt.Errorf("%w: create ledger table: %v", model.ErrStorage, err)
	}
	return nil
}

func (s *sqliteStore) Load(ctx context.Context) (map[string]model.LedgerEntry, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'ledger'`).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrMalformed, s.file, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrNotInitialized, s.file)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, local_id, remote_id FROM ledger`)
	if err != nil {
		return nil, fmt.Errorf("%w: query ledger: %v", model.ErrStorage, err)
	}
	defer rows.Close()

	entries := make(map[string]model.LedgerEntry)
	for rows.Next() {
		var (
			key, local string
			remote     sql.NullString
		)
		if err := rows.Scan(&key, &local, &remote); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrMalformed, err)
		}
		id, err := uuid.Parse(local)
		if err != nil {
			return nil, fmt.Errorf("%w: local id of %s: %v", store.ErrMalformed, key, err)
		}
		entries[key] = model.LedgerEntry{LocalID: id, RemoteID: remote.String}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return entries, nil
}

func (s *sqliteStore) Put(ctx context.Context, key string, e model.LedgerEntry) error {
	remote := sql.NullString{String: e.RemoteID, Valid: e.RemoteID != ""}
	_, err := s.db.ExecContext(ctx, `INSERT INTO ledger (key, local_id, remote_id)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			local_id = excluded.local_id,
			remote_id = excluded.remote_id`,
		key, e.LocalID.String(), remote)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", model.ErrStorage, key, err)
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }
