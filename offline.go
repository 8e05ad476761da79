// Package offline is a local-first synchronization database. It mirrors
// per-table delta sources into a key-value backing store, keeps secondary
// indexes over the mirror and answers filtered queries through them.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drpcorg/offline/indexes"
	"github.com/drpcorg/offline/offline_errors"
	"github.com/drpcorg/offline/overlay"
	"github.com/drpcorg/offline/store"
	"github.com/drpcorg/offline/tables"
	"github.com/drpcorg/offline/utils"
	"github.com/puzpuzpuz/xsync/v3"
)

type Options struct {
	Logger utils.Logger
	// Now stamps sync runs; tests replace it.
	Now func() time.Time
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Database struct {
	store store.Store
	im    *indexes.IndexManager
	log   utils.Logger
	opts  Options

	tables *xsync.MapOf[string, *tables.Table]
	order  []string
	olock  sync.Mutex

	// serializes root transactions of this Database
	txlock sync.Mutex

	syncing    atomic.Bool
	flight     *syncCall
	flightLock sync.Mutex
}

func Open(s store.Store, opts Options) *Database {
	opts.SetDefaults()
	return &Database{
		store:  s,
		im:     indexes.NewIndexManager(opts.Logger),
		log:    opts.Logger,
		opts:   opts,
		tables: xsync.NewMapOf[string, *tables.Table](),
	}
}

// Store is the backing store the database was opened over.
func (db *Database) Store() store.Store {
	return db.store
}

// Register adds table definitions. Keys are registered once.
func (db *Database) Register(ts ...*tables.Table) error {
	db.olock.Lock()
	defer db.olock.Unlock()
	for _, t := range ts {
		t.SetDefaults()
		if err := t.Valid(); err != nil {
			return err
		}
		if _, loaded := db.tables.LoadOrStore(t.Key, t); loaded {
			return fmt.Errorf("%w: %s", offline_errors.ErrTableExists, t.Key)
		}
		db.order = append(db.order, t.Key)
	}
	return nil
}

func (db *Database) Table(key string) (*tables.Table, error) {
	t, ok := db.tables.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", offline_errors.ErrUnknownTable, key)
	}
	return t, nil
}

// Tables lists the registered tables in registration order.
func (db *Database) Tables() []*tables.Table {
	db.olock.Lock()
	defer db.olock.Unlock()
	ts := make([]*tables.Table, 0, len(db.order))
	for _, key := range db.order {
		if t, ok := db.tables.Load(key); ok {
			ts = append(ts, t)
		}
	}
	return ts
}

// Transaction runs fn against a fresh overlay over the backing store and
// commits it when fn succeeds. Nothing fn wrote reaches the store when fn
// fails. Root transactions of one Database run one at a time.
//
// The root transaction lock is not reentrant. Inside fn, and inside a
// table's IsItemDeleted during Sync, calling Transaction, Sync, Delete,
// Clear or Patch with a nil tx blocks forever. Work inside fn goes through
// tx: Patch with tx, QueryTx and DeleteTx.
func (db *Database) Transaction(ctx context.Context, fn func(tx *overlay.Overlay) error) error {
	db.txlock.Lock()
	defer db.txlock.Unlock()
	root := overlay.New(db.store)
	if err := root.Transaction(ctx, fn); err != nil {
		return err
	}
	return root.Commit(ctx)
}

// Patch upserts one row out of band. With a nil tx the write commits on its
// own in a root transaction; otherwise it joins tx and commits with it.
func (db *Database) Patch(ctx context.Context, tableKey string, row tables.Row, tx *overlay.Overlay) error {
	t, err := db.Table(tableKey)
	if err != nil {
		return err
	}
	if tx != nil {
		return db.im.WriteItem(ctx, tx, t, row)
	}
	return db.Transaction(ctx, func(tx *overlay.Overlay) error {
		return db.im.WriteItem(ctx, tx, t, row)
	})
}

// Clear removes every row, index and sync state of every registered table.
func (db *Database) Clear(ctx context.Context) error {
	return db.Transaction(ctx, func(tx *overlay.Overlay) error {
		for _, t := range db.Tables() {
			if _, err := db.im.ClearTable(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// Meta returns the committed sync state of a table.
func (db *Database) Meta(ctx context.Context, tableKey string) (tables.Meta, error) {
	t, err := db.Table(tableKey)
	if err != nil {
		return tables.Meta{}, err
	}
	return db.im.Meta(ctx, db.store, t)
}
