package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/collapsinghierarchy/repsync/model"
)

var (
	ErrNotInitialized = fmt.Errorf("%w: ledger not initialized (run init)", model.ErrStorage)
	ErrMalformed      = fmt.Errorf("%w: ledger is malformed", model.ErrStorage)
)

// Store is a persistence backend for the dedup ledger.
type Store interface {
	// Init creates an empty ledger if none exists. Existing entries are kept.
	Init(ctx context.Context) error
	// Load returns every entry. It fails with ErrNotInitialized when the
	// ledger was never created.
	Load(ctx context.Context) (map[string]model.LedgerEntry, error)
	// Put durably stores one entry before returning.
	Put(ctx context.Context, key string, e model.LedgerEntry) error
	Close() error
}

// Ledger is the in-memory copy of the dedup ledger, owned by a single run.
// Every Record goes through to the backend before the map is updated.
type Ledger struct {
	st      Store
	entries map[string]model.LedgerEntry
}

// Open loads the full ledger from st.
func Open(ctx context.Context, st Store) (*Ledger, error) {
	entries, err := st.Load(ctx)
	if err != nil {
		if errors.Is(err, model.ErrStorage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load ledger: %v", model.ErrStorage, err)
	}
	if entries == nil {
		entries = make(map[string]model.LedgerEntry)
	}
	return &Ledger{st: st, entries: entries}, nil
}

func (l *Ledger) Contains(playerUUID string, ts int64) bool {
	_, ok := l.entries[model.LedgerKey(playerUUID, ts)]
	return ok
}

func (l *Ledger) Get(playerUUID string, ts int64) (model.LedgerEntry, bool) {
	e, ok := l.entries[model.LedgerKey(playerUUID, ts)]
	return e, ok
}

func (l *Ledger) Len() int { return len(l.entries) }

// Record stores (localID, remoteID) under the key of (playerUUID, ts).
// Last write wins.
func (l *Ledger) Record(ctx context.Context, playerUUID string, ts int64, localID uuid.UUID, remoteID string) error {
	key := model.LedgerKey(playerUUID, ts)
	e := model.LedgerEntry{LocalID: localID, RemoteID: remoteID}
	if err := l.st.Put(ctx, key, e); err != nil {
		if errors.Is(err, model.ErrStorage) {
			return err
		}
		return fmt.Errorf("%w: record %s: %v", model.ErrStorage, key, err)
	}
	l.entries[key] = e
	return nil
}
