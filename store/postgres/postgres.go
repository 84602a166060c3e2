package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collapsinghierarchy/repsync/model"
	"github.com/collapsinghierarchy/repsync/store"
)

type pgStore struct{ db *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) store.Store { return &pgStore{db: db} }

// Connect opens a pool for dsn and wraps it; Close releases the pool.
func Connect(ctx context.Context, dsn string) (store.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: pgxpool.New: %v", model.ErrStorage, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", model.ErrStorage, err)
	}
	return NewStore(pool), nil
}

// -------- schema ------------------------------------------------------------

func (p *pgStore) Init(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS ledger (
            key       TEXT PRIMARY KEY,
            local_id  UUID NOT NULL,
            remote_id TEXT
        )`)
	if err != nil {
		return fmt.Errorf("%w: create ledger table: %v", model.ErrStorage, err)
	}
	return nil
}

func (p *pgStore) initialized(ctx context.Context) (bool, error) {
	var name pgtype.Text
	err := p.db.QueryRow(ctx, `SELECT to_regclass('ledger')::text`).Scan(&name)
	return name.Valid, err
}

// -------- entries -----------------------------------------------------------

func (p *pgStore) Load(ctx context.Context) (map[string]model.LedgerEntry, error) {
	ok, err := p.initialized(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	if !ok {
		return nil, store.ErrNotInitialized
	}

	rows, err := p.db.Query(ctx, `SELECT key, local_id, remote_id FROM ledger`)
	if err != nil {
		return nil, fmt.Errorf("%w: query ledger: %v", model.ErrStorage, err)
	}
	defer rows.Close()

	entries := make(map[string]model.LedgerEntry)
	for rows.Next() {
		var (
			key    string
			local  uuid.UUID
			remote pgtype.Text
		)
		if err := rows.Scan(&key, &local, &remote); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrMalformed, err)
		}
		entries[key] = model.LedgerEntry{LocalID: local, RemoteID: remote.String}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return entries, nil
}

func (p *pgStore) Put(ctx context.Context, key string, e model.LedgerEntry) error {
	remote := pgtype.Text{String: e.RemoteID, Valid: e.RemoteID != ""}
	_, err := p.db.Exec(ctx, `
        INSERT INTO ledger (key, local_id, remote_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE
          SET local_id  = EXCLUDED.local_id,
              remote_id = EXCLUDED.remote_id`,
		key, e.LocalID, remote)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", model.ErrStorage, key, err)
	}
	return nil
}

func (p *pgStore) Close() error {
	p.db.Close()
	return nil
}
