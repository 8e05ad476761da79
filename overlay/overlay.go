// Package overlay provides a buffered, write-staging view over a backing
// store that has no transactions of its own.
//
// Reads go through to the delegate and are cached. Writes and removals stay
// in the overlay, marked pending, until Commit replays them onto the
// delegate. Removals are explicit tombstones, so a key removed in the overlay
// disappears from Get and Keys immediately, before any commit.
//
// Transaction layers a child overlay on top of this one. The child is flushed
// into its parent only when the callback succeeds; on failure the child
// buffer is dropped and the parent never sees its writes. Commit itself is
// not atomic across keys: a delegate failure half way leaves the keys flushed
// so far in place.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/drpcorg/offline/offline_errors"
	"github.com/drpcorg/offline/store"
)

type entry struct {
	value   []byte
	deleted bool
}

type Overlay struct {
	delegate store.Store

	// visible state: cached reads, writes and tombstones
	entries map[string]entry
	// keys written by this overlay, in first-write order
	written []string
	known   map[string]struct{}

	pending   []string
	isPending map[string]struct{}
}

var _ store.Store = (*Overlay)(nil)

func New(delegate store.Store) *Overlay {
	o := &Overlay{delegate: delegate}
	o.reset()
	return o
}

func (o *Overlay) reset() {
	o.entries = make(map[string]entry)
	o.written = nil
	o.known = make(map[string]struct{})
	o.pending = nil
	o.isPending = make(map[string]struct{})
}

func (o *Overlay) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if e, ok := o.entries[key]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return slices.Clone(e.value), true, nil
	}
	value, ok, err := o.delegate.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	o.entries[key] = entry{value: slices.Clone(value)}
	return value, true, nil
}

func (o *Overlay) Set(ctx context.Context, key string, value []byte) error {
	o.put(key, entry{value: slices.Clone(value)})
	return nil
}

func (o *Overlay) Remove(ctx context.Context, key string) error {
	o.put(key, entry{deleted: true})
	return nil
}

func (o *Overlay) put(key string, e entry) {
	o.entries[key] = e
	if _, ok := o.known[key]; !ok {
		o.known[key] = struct{}{}
		o.written = append(o.written, key)
	}
	if _, ok := o.isPending[key]; !ok {
		o.isPending[key] = struct{}{}
		o.pending = append(o.pending, key)
	}
}

// Keys returns the delegate's keys followed by keys only this overlay has
// written. Tombstoned keys are left out.
func (o *Overlay) Keys(ctx context.Context) ([]string, error) {
	return o.KeysWithPrefix(ctx, "")
}

// KeysWithPrefix is Keys restricted to keys starting with prefix. The
// delegate is asked for that range only.
func (o *Overlay) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	dkeys, err := store.KeysWithPrefix(ctx, o.delegate, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(dkeys)+len(o.written))
	seen := make(map[string]struct{}, len(dkeys))
	for _, key := range dkeys {
		seen[key] = struct{}{}
		if e, ok := o.entries[key]; ok && e.deleted {
			continue
		}
		keys = append(keys, key)
	}
	for _, key := range o.written {
		if _, ok := seen[key]; ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if o.entries[key].deleted {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Clear drops everything buffered in the overlay. The delegate is untouched.
func (o *Overlay) Clear(ctx context.Context) error {
	o.reset()
	return nil
}

// Pending is the number of keys waiting for Commit.
func (o *Overlay) Pending() int {
	return len(o.pending)
}

// Commit replays pending writes and removals onto the delegate in write
// order. The visible state is kept, the pending list is emptied. When the
// delegate fails after some keys were flushed, those keys stay flushed and
// the error is wrapped in ErrPartialFlush; the rest stays pending.
func (o *Overlay) Commit(ctx context.Context) error {
	for i, key := range o.pending {
		e := o.entries[key]
		var err error
		if e.deleted {
			err = o.delegate.Remove(ctx, key)
		} else {
			err = o.delegate.Set(ctx, key, e.value)
		}
		if err != nil {
			for _, flushed := range o.pending[:i] {
				delete(o.isPending, flushed)
			}
			o.pending = o.pending[i:]
			if i > 0 {
				return fmt.Errorf("%w: %d keys flushed, failed at %q: %w", offline_errors.ErrPartialFlush, i, key, err)
			}
			return err
		}
	}
	o.pending = nil
	o.isPending = make(map[string]struct{})
	return nil
}

// Transaction runs fn against a child overlay. A nil return flushes the
// child into o; an error discards the child and is returned wrapped in
// ErrTransactionAborted.
func (o *Overlay) Transaction(ctx context.Context, fn func(tx *Overlay) error) error {
	child := New(o)
	if err := fn(child); err != nil {
		if errors.Is(err, offline_errors.ErrTransactionAborted) {
			return err
		}
		return fmt.Errorf("%w: %w", offline_errors.ErrTransactionAborted, err)
	}
	return child.Commit(ctx)
}
