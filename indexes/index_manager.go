package indexes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/drpcorg/offline/keyspace"
	"github.com/drpcorg/offline/offline_errors"
	"github.com/drpcorg/offline/store"
	"github.com/drpcorg/offline/tables"
	"github.com/drpcorg/offline/utils"
	"github.com/prometheus/client_golang/prometheus"
)

var GroupMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "offline",
	Subsystem: "index_manager",
	Name:      "group_mutations",
}, []string{"table", "index", "op"})

var RowWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "offline",
	Subsystem: "index_manager",
	Name:      "row_writes",
}, []string{"table", "op"})

type IndexManager struct {
	log utils.Logger
}

func NewIndexManager(log utils.Logger) *IndexManager {
	return &IndexManager{log: log}
}

func getJSON(ctx context.Context, r store.Reader, key string, v any) (bool, error) {
	data, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func putJSON(ctx context.Context, w store.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return w.Set(ctx, key, data)
}

func (im *IndexManager) Row(ctx context.Context, r store.Reader, t *tables.Table, id string) (tables.Row, bool, error) {
	var row tables.Row
	ok, err := getJSON(ctx, r, keyspace.RowKey(t.Key, id), &row)
	return row, ok && row != nil, err
}

// Snapshot returns the index values recorded for the row, empty if none.
func (im *IndexManager) Snapshot(ctx context.Context, r store.Reader, t *tables.Table, id string) (map[string]any, error) {
	snap := map[string]any{}
	if _, err := getJSON(ctx, r, keyspace.RowIndexesKey(t.Key, id), &snap); err != nil {
		return nil, err
	}
	if snap == nil {
		snap = map[string]any{}
	}
	return snap, nil
}

// Groups returns the group list of one index, empty if none.
func (im *IndexManager) Groups(ctx context.Context, r store.Reader, t *tables.Table, index string) ([]Group, error) {
	var groups []Group
	if _, err := getJSON(ctx, r, keyspace.IndexKey(t.Key, index), &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (im *IndexManager) Meta(ctx context.Context, r store.Reader, t *tables.Table) (tables.Meta, error) {
	var meta tables.Meta
	_, err := getJSON(ctx, r, keyspace.MetaKey(t.Key), &meta)
	return meta, err
}

func (im *IndexManager) SetMeta(ctx context.Context, w store.Store, t *tables.Table, meta tables.Meta) error {
	return putJSON(ctx, w, keyspace.MetaKey(t.Key), meta)
}

// RowIDs enumerates the ids of every stored row in key order.
func (im *IndexManager) RowIDs(ctx context.Context, r store.Reader, t *tables.Table) ([]string, error) {
	keys, err := store.KeysWithPrefix(ctx, r, keyspace.RowPrefix(t.Key))
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, key := range keys {
		if id, ok := keyspace.ParseRowKey(t.Key, key); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// WriteItem upserts a full row and moves its id between index groups.
func (im *IndexManager) WriteItem(ctx context.Context, tx store.Store, t *tables.Table, row tables.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", t.Key, err)
	}
	// index and delete decisions see the row exactly as queries will
	var stored tables.Row
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode %s row: %w", t.Key, err)
	}
	deleted, err := t.IsDeleted(stored)
	if err != nil {
		return fmt.Errorf("%w: %s: deletion predicate: %w", offline_errors.ErrSourceFailed, t.Key, err)
	}
	id, ok := t.KeyOf(stored)
	if !ok {
		return fmt.Errorf("%w: %s.%s", offline_errors.ErrMissingKey, t.Key, t.KeyPath)
	}
	if deleted {
		return im.DeleteItem(ctx, tx, t, id)
	}
	sid := tables.IDString(id)

	prev, err := im.Snapshot(ctx, tx, t, sid)
	if err != nil {
		return err
	}
	if err := tx.Set(ctx, keyspace.RowKey(t.Key, sid), data); err != nil {
		return err
	}
	next := t.IndexValuesOf(stored)
	if err := putJSON(ctx, tx, keyspace.RowIndexesKey(t.Key, sid), next); err != nil {
		return err
	}
	RowWrites.WithLabelValues(t.Key, "write").Inc()

	for _, d := range t.Indexes {
		oldValue, removeFrom := prev[d.Name]
		newValue, updateTo := next[d.Name]
		if removeFrom && updateTo && tables.Equal(oldValue, newValue) {
			continue
		}
		if !removeFrom && !updateTo {
			continue
		}
		groups, err := im.Groups(ctx, tx, t, d.Name)
		if err != nil {
			return err
		}
		if removeFrom {
			groups = stripID(groups, oldValue, sid)
			GroupMutations.WithLabelValues(t.Key, d.Name, "remove").Inc()
		}
		if updateTo {
			groups = addID(groups, newValue, id)
			GroupMutations.WithLabelValues(t.Key, d.Name, "add").Inc()
		}
		if err := putJSON(ctx, tx, keyspace.IndexKey(t.Key, d.Name), groups); err != nil {
			return err
		}
	}
	im.log.DebugCtx(ctx, "row written", "table", t.Key, "id", sid)
	return nil
}

// DeleteItem removes a row, its snapshot and its id from every index group.
// Deleting an absent row is a no-op apart from the removals being staged.
func (im *IndexManager) DeleteItem(ctx context.Context, tx store.Store, t *tables.Table, id any) error {
	sid := tables.IDString(id)
	snap, err := im.Snapshot(ctx, tx, t, sid)
	if err != nil {
		return err
	}
	for _, d := range t.Indexes {
		value, ok := snap[d.Name]
		if !ok {
			continue
		}
		groups, err := im.Groups(ctx, tx, t, d.Name)
		if err != nil {
			return err
		}
		groups = stripID(groups, value, sid)
		GroupMutations.WithLabelValues(t.Key, d.Name, "remove").Inc()
		if err := putJSON(ctx, tx, keyspace.IndexKey(t.Key, d.Name), groups); err != nil {
			return err
		}
	}
	if err := tx.Remove(ctx, keyspace.RowKey(t.Key, sid)); err != nil {
		return err
	}
	if err := tx.Remove(ctx, keyspace.RowIndexesKey(t.Key, sid)); err != nil {
		return err
	}
	RowWrites.WithLabelValues(t.Key, "delete").Inc()
	im.log.DebugCtx(ctx, "row deleted", "table", t.Key, "id", sid)
	return nil
}

// ClearTable removes every key in the table namespace: rows, snapshots,
// indexes and meta.
func (im *IndexManager) ClearTable(ctx context.Context, tx store.Store, t *tables.Table) (int, error) {
	keys, err := store.KeysWithPrefix(ctx, tx, keyspace.TablePrefix(t.Key))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if err := tx.Remove(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	im.log.DebugCtx(ctx, "table cleared", "table", t.Key, "keys", removed)
	return removed, nil
}
