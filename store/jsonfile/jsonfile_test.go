package jsonfile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/collapsinghierarchy/repsync/model"
	"github.com/collapsinghierarchy/repsync/store"
	"github.com/collapsinghierarchy/repsync/store/jsonfile"
)

func TestLoad_Missing(t *testing.T) {
	st := jsonfile.NewStore(filepath.Join(t.TempDir(), "submitted.json"))

	_, err := st.Load(context.Background())
	require.ErrorIs(t, err, store.ErrNotInitialized)
	require.ErrorIs(t, err, model.ErrStorage)

	_, err = store.Open(context.Background(), st)
	require.ErrorIs(t, err, store.ErrNotInitialized)
}

func TestLoad_Malformed(t *testing.T) {
	for _, body := range []string{"not json", "null", "[]"} {
		path := filepath.Join(t.TempDir(), "submitted.json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))

		_, err := jsonfile.NewStore(path).Load(context.Background())
		require.ErrorIs(t, err, store.ErrMalformed, "body %q", body)
	}
}

func TestInitRecordReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "submitted.json")
	st := jsonfile.NewStore(path)
	require.NoError(t, st.Init(ctx))

	l, err := store.Open(ctx, st)
	require.NoError(t, err)
	require.Equal(t, 0, l.Len())

	local := uuid.New()
	require.NoError(t, l.Record(ctx, "A", 1704067200, local, "R1"))
	require.True(t, l.Contains("A", 1704067200))
	require.False(t, l.Contains("A", 1704067200000))

	// a fresh process sees the committed entry
	l2, err := store.Open(ctx, jsonfile.NewStore(path))
	require.NoError(t, err)
	e, ok := l2.Get("A", 1704067200)
	require.True(t, ok)
	require.Equal(t, model.LedgerEntry{LocalID: local, RemoteID: "R1"}, e)

	// last write wins
	local2 := uuid.New()
	require.NoError(t, l2.Record(ctx, "A", 1704067200, local2, "R2"))
	l3, err := store.Open(ctx, jsonfile.NewStore(path))
	require.NoError(t, err)
	e, _ = l3.Get("A", 1704067200)
	require.Equal(t, "R2", e.RemoteID)
}

func TestInit_KeepsExisting(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "submitted.json")
	st := jsonfile.NewStore(path)
	require.NoError(t, st.Init(ctx))
	require.NoError(t, st.Put(ctx, "A:1", model.LedgerEntry{LocalID: uuid.New(), RemoteID: "R"}))

	require.NoError(t, jsonfile.NewStore(path).Init(ctx))
	entries, err := jsonfile.NewStore(path).Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPut_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := jsonfile.NewStore(filepath.Join(dir, "submitted.json"))
	require.NoError(t, st.Init(ctx))
	for i := 0; i < 5; i++ {
		require.NoError(t, st.Put(ctx, model.LedgerKey("P", int64(i)), model.LedgerEntry{LocalID: uuid.New()}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "submitted.json", entries[0].Name())
}

func TestPut_FailureKeepsPreviousFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "submitted.json")
	st := jsonfile.NewStore(path)
	require.NoError(t, st.Init(ctx))
	require.NoError(t, st.Put(ctx, "A:1", model.LedgerEntry{LocalID: uuid.New(), RemoteID: "R"}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// die halfway through writing the replacement
	jsonfile.SetWriterForTest(st, func(p string, data []byte, perm os.FileMode) error {
		tmp, err := os.CreateTemp(filepath.Dir(p), ".partial-*")
		if err != nil {
			return err
		}
		defer tmp.Close()
		if _, err := tmp.Write(data[:len(data)/2]); err != nil {
			return err
		}
		return errors.New("disk full")
	})
	err = st.Put(ctx, "B:2", model.LedgerEntry{LocalID: uuid.New(), RemoteID: "S"})
	require.ErrorIs(t, err, model.ErrStorage)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)

	// the failed entry is not kept in memory either
	jsonfile.SetWriterForTest(st, store.WriteFileAtomic)
	require.NoError(t, st.Put(ctx, "C:3", model.LedgerEntry{LocalID: uuid.New(), RemoteID: "T"}))
	got, err := jsonfile.NewStore(path).Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotContains(t, got, "B:2")
}
