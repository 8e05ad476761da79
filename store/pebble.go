package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/offline/offline_errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 10000

type PebbleOptions struct {
	// Dir is the database directory, created when missing.
	Dir string
	// CacheSize bounds the read cache (entries). Negative disables it.
	CacheSize int
	// Options are passed to pebble.Open; set FS to vfs.NewMem() for
	// throwaway stores.
	Options pebble.Options
}

func (o *PebbleOptions) SetDefaults() {
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
}

// Pebble is a Store backed by a Pebble LSM database. Every write is synced.
// Recently read and written values are kept in an LRU cache.
type Pebble struct {
	lock  sync.RWMutex
	db    *pebble.DB
	cache *lru.Cache[string, []byte]
	wo    *pebble.WriteOptions
}

func OpenPebble(opts PebbleOptions) (*Pebble, error) {
	opts.SetDefaults()
	db, err := pebble.Open(opts.Dir, &opts.Options)
	if err != nil {
		return nil, err
	}
	p := &Pebble{db: db, wo: pebble.Sync}
	if opts.CacheSize > 0 {
		p.cache, err = lru.New[string, []byte](opts.CacheSize)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return p, nil
}

// Database exposes the underlying Pebble handle.
func (p *Pebble) Database() *pebble.DB {
	return p.db
}

func (p *Pebble) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.db == nil {
		return offline_errors.ErrClosed
	}
	err := p.db.Close()
	p.db = nil
	if p.cache != nil {
		p.cache.Purge()
	}
	return err
}

func (p *Pebble) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.db == nil {
		return nil, false, offline_errors.ErrClosed
	}
	if p.cache != nil {
		if value, ok := p.cache.Get(key); ok {
			return slices.Clone(value), true, nil
		}
	}
	value, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value = slices.Clone(value)
	_ = closer.Close()
	if p.cache != nil {
		p.cache.Add(key, value)
	}
	return slices.Clone(value), true, nil
}

// Set and Remove hold the write lock so that no Get can re-cache the old
// value between the Pebble write and the cache update.
func (p *Pebble) Set(ctx context.Context, key string, value []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.db == nil {
		return offline_errors.ErrClosed
	}
	if err := p.db.Set([]byte(key), value, p.wo); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.Add(key, slices.Clone(value))
	}
	return nil
}

func (p *Pebble) Remove(ctx context.Context, key string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.db == nil {
		return offline_errors.ErrClosed
	}
	if err := p.db.Delete([]byte(key), p.wo); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.Remove(key)
	}
	return nil
}

func (p *Pebble) Keys(ctx context.Context) ([]string, error) {
	return p.keys(ctx, &pebble.IterOptions{})
}

// KeysWithPrefix walks only the key range starting with prefix.
func (p *Pebble) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return p.keys(ctx, &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixEnd([]byte(prefix)),
	})
}

// prefixEnd is the smallest key greater than every key starting with
// prefix, or nil when there is none.
func prefixEnd(prefix []byte) []byte {
	end := slices.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (p *Pebble) keys(ctx context.Context, opts *pebble.IterOptions) ([]string, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.db == nil {
		return nil, offline_errors.ErrClosed
	}
	iter, err := p.db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	keys := []string{}
	for valid := iter.First(); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

// Clear removes every key in one Pebble batch.
func (p *Pebble) Clear(ctx context.Context) error {
	keys, err := p.Keys(ctx)
	if err != nil {
		return err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.db == nil {
		return offline_errors.ErrClosed
	}
	batch := p.db.NewBatch()
	defer batch.Close()
	for _, key := range keys {
		if err := batch.Delete([]byte(key), nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(p.wo); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.Purge()
	}
	return nil
}

// Collector reports Pebble internals to Prometheus. A closed store
// reports nothing.
func (p *Pebble) Collector() *PebbleCollector {
	return NewPebbleCollector(p)
}

func (p *Pebble) metrics() *pebble.Metrics {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.db == nil {
		return nil
	}
	return p.db.Metrics()
}
