package postgres

import (
	"context"

	"github.com/collapsinghierarchy/repsync/store"
)

func DropForTest(ctx context.Context, st store.Store) error {
	_, err := st.(*pgStore).db.Exec(ctx, `DROP TABLE IF EXISTS ledger`)
	return err
}
