// Package store defines the backing key-value contract and ships two
// implementations of it: an ordered in-memory map and a Pebble database.
//
// A backing store has no transactions of its own. Atomic multi-key writes are
// layered on top by package overlay.
package store

import (
	"context"
	"strings"
)

// Reader is the read half of a backing store.
type Reader interface {
	// Get returns the value stored at key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Keys enumerates every key. The order is the store's enumeration order
	// and is what full table scans observe.
	Keys(ctx context.Context) ([]string, error)
}

// Store is the backing store contract.
type Store interface {
	Reader
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// PrefixReader is implemented by readers that can enumerate one key range
// without walking the whole keyspace.
type PrefixReader interface {
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// KeysWithPrefix lists the keys of r starting with prefix, in r's
// enumeration order.
func KeysWithPrefix(ctx context.Context, r Reader, prefix string) ([]string, error) {
	if pr, ok := r.(PrefixReader); ok {
		return pr.KeysWithPrefix(ctx, prefix)
	}
	keys, err := r.Keys(ctx)
	if err != nil {
		return nil, err
	}
	matched := keys[:0]
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	return matched, nil
}
