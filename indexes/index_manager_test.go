package indexes

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/drpcorg/offline/keyspace"
	"github.com/drpcorg/offline/offline_errors"
	"github.com/drpcorg/offline/store"
	"github.com/drpcorg/offline/tables"
	"github.com/drpcorg/offline/utils"
	"github.com/stretchr/testify/assert"
)

func todos() *tables.Table {
	t := &tables.Table{
		Key: "todos",
		Indexes: []tables.IndexDef{
			tables.Column("primary", "id"),
			tables.Column("enabled", "active"),
			tables.Func("owner", func(row tables.Row) (any, bool) {
				v, ok := row["owner"].(map[string]any)
				if !ok {
					return nil, false
				}
				return v["name"], true
			}),
		},
		IsItemDeleted: func(row tables.Row) (bool, error) {
			deleted, _ := row["deleted"].(bool)
			return deleted, nil
		},
	}
	t.SetDefaults()
	return t
}

func newManager() *IndexManager {
	return NewIndexManager(utils.NewDefaultLogger(slog.LevelError))
}

func groupIDs(t *testing.T, im *IndexManager, s store.Reader, tbl *tables.Table, index string, value any) []string {
	groups, err := im.Groups(context.Background(), s, tbl, index)
	assert.NoError(t, err)
	i := FindGroup(groups, value)
	if i < 0 {
		return nil
	}
	return groups[i].IDStrings()
}

func TestIndexManager_WriteItem(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	im := newManager()
	tbl := todos()

	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 1, "active": true, "owner": map[string]any{"name": "ann"}}))
	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 2, "active": true}))

	row, ok, err := im.Row(ctx, mem, tbl, "1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, true, row["active"])
	assert.Equal(t, float64(1), row["id"])

	snap, err := im.Snapshot(ctx, mem, tbl, "1")
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"primary": float64(1), "enabled": true, "owner": "ann"}, snap)

	snap, err = im.Snapshot(ctx, mem, tbl, "2")
	assert.NoError(t, err)
	assert.NotContains(t, snap, "owner")

	assert.Equal(t, []string{"1", "2"}, groupIDs(t, im, mem, tbl, "enabled", true))
	assert.Equal(t, []string{"1"}, groupIDs(t, im, mem, tbl, "owner", "ann"))
	assert.Equal(t, []string{"2"}, groupIDs(t, im, mem, tbl, "primary", 2))
}

func TestIndexManager_Reindex(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	im := newManager()
	tbl := todos()

	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 1, "active": true}))
	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 2, "active": true}))
	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 1, "active": false}))

	assert.Equal(t, []string{"2"}, groupIDs(t, im, mem, tbl, "enabled", true))
	assert.Equal(t, []string{"1"}, groupIDs(t, im, mem, tbl, "enabled", false))

	// rewriting the same value keeps a single membership
	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 1, "active": false}))
	assert.Equal(t, []string{"1"}, groupIDs(t, im, mem, tbl, "enabled", false))

	// dropping the column leaves the index
	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 1}))
	assert.Empty(t, groupIDs(t, im, mem, tbl, "enabled", false))
}

func TestIndexManager_DeletionPredicate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	im := newManager()
	tbl := todos()

	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": "a", "active": true}))
	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": "a", "active": true, "deleted": true}))

	_, ok, err := im.Row(ctx, mem, tbl, "a")
	assert.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = mem.Get(ctx, keyspace.RowIndexesKey("todos", "a"))
	assert.False(t, ok)
	assert.Empty(t, groupIDs(t, im, mem, tbl, "enabled", true))

	groups, err := im.Groups(ctx, mem, tbl, "enabled")
	assert.NoError(t, err)
	assert.Len(t, groups, 1, "empty groups stay in place")
}

func TestIndexManager_DeletionPredicateFailure(t *testing.T) {
	ctx := context.Background()
	tbl := todos()
	boom := errors.New("boom")
	tbl.IsItemDeleted = func(tables.Row) (bool, error) { return false, boom }

	err := newManager().WriteItem(ctx, store.NewMemory(), tbl, tables.Row{"id": 1})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, offline_errors.ErrSourceFailed)
}

func TestIndexManager_MissingKey(t *testing.T) {
	err := newManager().WriteItem(context.Background(), store.NewMemory(), todos(), tables.Row{"active": true})
	assert.ErrorIs(t, err, offline_errors.ErrMissingKey)
}

func TestIndexManager_DeleteItem(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	im := newManager()
	tbl := todos()

	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 1, "active": true, "owner": map[string]any{"name": "bo"}}))
	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 2, "active": true}))
	assert.NoError(t, im.DeleteItem(ctx, mem, tbl, 1))

	assert.Equal(t, []string{"2"}, groupIDs(t, im, mem, tbl, "enabled", true))
	assert.Empty(t, groupIDs(t, im, mem, tbl, "owner", "bo"))
	assert.Empty(t, groupIDs(t, im, mem, tbl, "primary", 1))

	ids, err := im.RowIDs(ctx, mem, tbl)
	assert.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)

	assert.NoError(t, im.DeleteItem(ctx, mem, tbl, "missing"))
}

func TestIndexManager_CompositeValueStaysInOneGroup(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	im := newManager()
	tbl := &tables.Table{Key: "t", Indexes: []tables.IndexDef{tables.Column("tags", "tags")}}
	tbl.SetDefaults()

	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 1, "tags": []any{"a"}}))
	assert.NoError(t, im.WriteItem(ctx, mem, tbl, tables.Row{"id": 1, "tags": []any{"b"}}))

	groups, err := im.Groups(ctx, mem, tbl, "tags")
	assert.NoError(t, err)
	members := 0
	for _, g := range groups {
		members += len(g.IDs)
	}
	assert.Equal(t, 1, members)
}

func TestIndexManager_ClearTable(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	im := newManager()
	comments := &tables.Table{Key: "comments", Indexes: []tables.IndexDef{tables.Column("post", "post")}}
	comments2 := &tables.Table{Key: "comments2", Indexes: []tables.IndexDef{tables.Column("post", "post")}}
	comments.SetDefaults()
	comments2.SetDefaults()

	assert.NoError(t, im.WriteItem(ctx, mem, comments, tables.Row{"id": 1, "post": 1}))
	assert.NoError(t, im.SetMeta(ctx, mem, comments, tables.Meta{}))
	assert.NoError(t, im.WriteItem(ctx, mem, comments2, tables.Row{"id": 1, "post": 1}))

	removed, err := im.ClearTable(ctx, mem, comments)
	assert.NoError(t, err)
	assert.Equal(t, 4, removed)

	keys, err := mem.Keys(ctx)
	assert.NoError(t, err)
	for _, key := range keys {
		assert.True(t, keyspace.InTable("comments2", key), key)
	}
	assert.Len(t, keys, 3)
}

// rangeOnly fails full key enumerations.
type rangeOnly struct {
	*store.Memory
}

func (r rangeOnly) Keys(ctx context.Context) ([]string, error) {
	return nil, errors.New("full key scan")
}

func TestIndexManager_ScansStayInTable(t *testing.T) {
	ctx := context.Background()
	mem := rangeOnly{store.NewMemory()}
	im := newManager()
	posts := &tables.Table{Key: "posts", Indexes: []tables.IndexDef{tables.Column("author", "author")}}
	other := &tables.Table{Key: "posts2"}
	posts.SetDefaults()
	other.SetDefaults()

	assert.NoError(t, im.WriteItem(ctx, mem, posts, tables.Row{"id": "a", "author": 1}))
	assert.NoError(t, im.WriteItem(ctx, mem, posts, tables.Row{"id": "b", "author": 2}))
	assert.NoError(t, im.WriteItem(ctx, mem, other, tables.Row{"id": "c"}))

	ids, err := im.RowIDs(ctx, mem, posts)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	removed, err := im.ClearTable(ctx, mem, posts)
	assert.NoError(t, err)
	assert.Equal(t, 5, removed)

	ids, err = im.RowIDs(ctx, mem, other)
	assert.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids)
}
