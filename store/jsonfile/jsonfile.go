// Package jsonfile keeps the dedup ledger in a single JSON object:
//
//	{"<playerUUID>:<unix seconds>": {"local": "<uuid>", "remote": "<uuid>"}}
//
// Every Put rewrites the whole mapping with store.WriteFileAtomic.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/collapsinghierarchy/repsync/model"
	"github.com/collapsinghierarchy/repsync/store"
)

const filePerm = 0600

type fileStore struct {
	path    string
	entries map[string]model.LedgerEntry
	write   func(path string, data []byte, perm os.FileMode) error
}

func NewStore(path string) store.Store {
	return &fileStore{path: path, write: store.WriteFileAtomic}
}

func (f *fileStore) Init(ctx context.Context) error {
	if _, err := os.Stat(f.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: stat %s: %v", model.ErrStorage, f.path, err)
	}
	f.entries = make(map[string]model.LedgerEntry)
	return f.flush()
}

func (f *fileStore) Load(ctx context.Context) (map[string]model.LedgerEntry, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotInitialized, f.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrStorage, f.path, err)
	}

	var entries map[string]model.LedgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrMalformed, f.path, err)
	}
	if entries == nil {
		// a literal "null" is not an initialized ledger
		return nil, fmt.Errorf("%w: %s is not a mapping", store.ErrMalformed, f.path)
	}
	f.entries = entries

	out := make(map[string]model.LedgerEntry, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return out, nil
}

func (f *fileStore) Put(ctx context.Context, key string, e model.LedgerEntry) error {
	if f.entries == nil {
		if _, err := f.Load(ctx); err != nil {
			return err
		}
	}
	prev, had := f.entries[key]
	f.entries[key] = e
	if err := f.flush(); err != nil {
		if had {
			f.entries[key] = prev
		} else {
			delete(f.entries, key)
		}
		return err
	}
	return nil
}

func (f *fileStore) flush() error {
	data, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal ledger: %v", model.ErrStorage, err)
	}
	if err := f.write(f.path, data, filePerm); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrStorage, f.path, err)
	}
	return nil
}

func (f *fileStore) Close() error { return nil }
