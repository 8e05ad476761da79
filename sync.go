package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drpcorg/offline/offline_errors"
	"github.com/drpcorg/offline/overlay"
	"github.com/drpcorg/offline/tables"
	"github.com/drpcorg/offline/utils"
	"github.com/google/uuid"
)

type syncCall struct {
	done chan struct{}
	err  error
}

type fetched struct {
	meta tables.Meta
	rows []tables.Row
}

// Syncing reports whether a sync is in flight.
func (db *Database) Syncing() bool {
	return db.syncing.Load()
}

// Sync pulls every table's delta source and merges all of them in one
// transaction. Tables without a source are skipped.
//
// Concurrent callers share one run: a Sync started while another is in
// flight waits for it and returns its result.
func (db *Database) Sync(ctx context.Context) error {
	db.flightLock.Lock()
	if call := db.flight; call != nil {
		db.flightLock.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &syncCall{done: make(chan struct{})}
	db.flight = call
	db.syncing.Store(true)
	db.flightLock.Unlock()

	defer func() {
		db.flightLock.Lock()
		db.flight = nil
		db.syncing.Store(false)
		db.flightLock.Unlock()
		close(call.done)
	}()
	call.err = db.sync(ctx)
	return call.err
}

func (db *Database) sync(ctx context.Context) (err error) {
	ctx = utils.WithDefaultArgs(ctx, "sync", uuid.NewString())
	started := db.opts.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		SyncDuration.WithLabelValues(result).Observe(time.Since(started).Seconds())
	}()

	ts := db.Tables()
	deltas, err := db.fetch(ctx, ts)
	if err != nil {
		db.log.ErrorCtx(ctx, "sync fetch failed", "err", err)
		return err
	}

	merged := 0
	err = db.Transaction(ctx, func(tx *overlay.Overlay) error {
		for i, t := range ts {
			if t.Source == nil {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := db.merge(ctx, tx, t, deltas[i], started)
			if err != nil {
				return err
			}
			merged += n
		}
		return nil
	})
	if err != nil {
		db.log.ErrorCtx(ctx, "sync merge failed", "err", err)
		return err
	}
	db.log.InfoCtx(ctx, "sync done", "tables", len(ts), "rows", merged, "took", time.Since(started))
	return nil
}

// fetch reads every table's delta concurrently. No storage is written.
func (db *Database) fetch(ctx context.Context, ts []*tables.Table) ([]fetched, error) {
	deltas := make([]fetched, len(ts))
	errs := make([]error, len(ts))
	var wg sync.WaitGroup
	for i, t := range ts {
		if t.Source == nil {
			continue
		}
		meta, err := db.im.Meta(ctx, db.store, t)
		if err != nil {
			errs[i] = fmt.Errorf("%s: read meta: %w", t.Key, err)
			continue
		}
		deltas[i].meta = meta
		since := meta.LastSync
		if t.ForceSync {
			since = nil
		}
		wg.Add(1)
		go func(i int, t *tables.Table, since *time.Time) {
			defer wg.Done()
			rows, err := t.Source.GetSince(ctx, since)
			if err != nil {
				errs[i] = fmt.Errorf("%w: %s: %w", offline_errors.ErrSourceFailed, t.Key, err)
				return
			}
			deltas[i].rows = rows
			db.log.DebugCtx(ctx, "delta fetched", "table", t.Key, "rows", len(rows), "full", since == nil)
		}(i, t, since)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return deltas, nil
}

func (db *Database) merge(ctx context.Context, tx *overlay.Overlay, t *tables.Table, delta fetched, started time.Time) (int, error) {
	if t.ForceSync {
		if _, err := db.im.ClearTable(ctx, tx, t); err != nil {
			return 0, fmt.Errorf("%s: pre-clear: %w", t.Key, err)
		}
	}
	for _, row := range delta.rows {
		if err := db.im.WriteItem(ctx, tx, t, row); err != nil {
			return 0, fmt.Errorf("%s: merge: %w", t.Key, err)
		}
	}
	last := started
	if prev := delta.meta.LastSync; prev != nil && prev.After(last) {
		last = *prev
	}
	if err := db.im.SetMeta(ctx, tx, t, tables.Meta{LastSync: &last}); err != nil {
		return 0, err
	}
	SyncRows.WithLabelValues(t.Key).Add(float64(len(delta.rows)))
	return len(delta.rows), nil
}
