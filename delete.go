package offline

import (
	"context"

	"github.com/drpcorg/offline/overlay"
	"github.com/drpcorg/offline/tables"
)

// Delete removes every row matching filter in one transaction and returns
// how many were removed. Like every call that opens a root transaction it
// must not be made from inside a Transaction callback; use DeleteTx there.
func (db *Database) Delete(ctx context.Context, tableKey string, filter tables.Filter) (int, error) {
	deleted := 0
	err := db.Transaction(ctx, func(tx *overlay.Overlay) error {
		var err error
		deleted, err = db.DeleteTx(ctx, tx, tableKey, filter)
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteTx is Delete inside an open transaction. Nothing is committed.
func (db *Database) DeleteTx(ctx context.Context, tx *overlay.Overlay, tableKey string, filter tables.Filter) (int, error) {
	t, err := db.Table(tableKey)
	if err != nil {
		return 0, err
	}
	res, err := db.query(ctx, tx, t, filter, QueryOptions{})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, row := range res.Rows {
		id, ok := t.KeyOf(row)
		if !ok {
			continue
		}
		if err := db.im.DeleteItem(ctx, tx, t, id); err != nil {
			return deleted, err
		}
		deleted++
	}
	db.log.DebugCtx(ctx, "rows deleted", "table", t.Key, "count", deleted)
	return deleted, nil
}
