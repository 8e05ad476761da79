package overlay

import (
	"context"
	"errors"
	"testing"

	"github.com/drpcorg/offline/offline_errors"
	"github.com/drpcorg/offline/store"
	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

// failingStore fails every write to one key.
type failingStore struct {
	*store.Memory
	failKey string
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if key == f.failKey {
		return errBoom
	}
	return f.Memory.Set(ctx, key, value)
}

func get(t *testing.T, s store.Store, key string) (string, bool) {
	value, ok, err := s.Get(context.Background(), key)
	assert.NoError(t, err)
	return string(value), ok
}

func TestOverlay_ReadThroughAndBuffer(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_ = mem.Set(ctx, "a", []byte("1"))

	o := New(mem)
	value, ok := get(t, o, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", value)

	assert.NoError(t, o.Set(ctx, "b", []byte("2")))
	assert.NoError(t, o.Remove(ctx, "a"))
	assert.Equal(t, 2, o.Pending())

	_, ok = get(t, o, "a")
	assert.False(t, ok, "tombstone must hide the delegate value")
	_, ok = get(t, mem, "b")
	assert.False(t, ok, "writes stay buffered until commit")

	keys, err := o.Keys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	assert.NoError(t, o.Commit(ctx))
	assert.Equal(t, 0, o.Pending())
	_, ok = get(t, mem, "a")
	assert.False(t, ok)
	value, ok = get(t, mem, "b")
	assert.True(t, ok)
	assert.Equal(t, "2", value)

	value, ok = get(t, o, "b")
	assert.True(t, ok, "visible state survives commit")
	assert.Equal(t, "2", value)
}

func TestOverlay_KeysOrder(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_ = mem.Set(ctx, "b", []byte("1"))
	_ = mem.Set(ctx, "d", []byte("1"))

	o := New(mem)
	_ = o.Set(ctx, "z", []byte("1"))
	_ = o.Set(ctx, "a", []byte("1"))
	_ = o.Set(ctx, "b", []byte("2"))

	keys, err := o.Keys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "z", "a"}, keys)
}

// scanCounter counts full key enumerations.
type scanCounter struct {
	*store.Memory
	full int
}

func (s *scanCounter) Keys(ctx context.Context) ([]string, error) {
	s.full++
	return s.Memory.Keys(ctx)
}

func TestOverlay_KeysWithPrefix(t *testing.T) {
	ctx := context.Background()
	mem := &scanCounter{Memory: store.NewMemory()}
	_ = mem.Set(ctx, "t/1", []byte("1"))
	_ = mem.Set(ctx, "t/2", []byte("1"))
	_ = mem.Set(ctx, "t2/1", []byte("1"))

	o := New(mem)
	_ = o.Set(ctx, "t/3", []byte("1"))
	_ = o.Set(ctx, "u/1", []byte("1"))
	_ = o.Remove(ctx, "t/1")

	var keys []string
	err := o.Transaction(ctx, func(tx *Overlay) error {
		_ = tx.Set(ctx, "t/0", []byte("1"))
		var err error
		keys, err = tx.KeysWithPrefix(ctx, "t/")
		return err
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"t/2", "t/3", "t/0"}, keys)
	assert.Zero(t, mem.full, "a prefix listing must not walk the whole delegate")

	keys, err = store.KeysWithPrefix(ctx, o, "t/")
	assert.NoError(t, err)
	assert.Equal(t, []string{"t/2", "t/3", "t/0"}, keys)
}

func TestOverlay_Clear(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_ = mem.Set(ctx, "a", []byte("1"))

	o := New(mem)
	_ = o.Remove(ctx, "a")
	_ = o.Set(ctx, "b", []byte("2"))
	assert.NoError(t, o.Clear(ctx))

	assert.Equal(t, 0, o.Pending())
	value, ok := get(t, o, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", value)
	_, ok = get(t, o, "b")
	assert.False(t, ok)
	assert.Equal(t, 1, mem.Len())
}

func TestOverlay_TransactionCommitsIntoParent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	o := New(mem)

	err := o.Transaction(ctx, func(tx *Overlay) error {
		return tx.Set(ctx, "a", []byte("1"))
	})
	assert.NoError(t, err)

	value, ok := get(t, o, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", value)
	_, ok = get(t, mem, "a")
	assert.False(t, ok, "parent still buffers")
	assert.Equal(t, 1, o.Pending())
}

func TestOverlay_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_ = mem.Set(ctx, "a", []byte("1"))
	o := New(mem)

	err := o.Transaction(ctx, func(tx *Overlay) error {
		_ = tx.Set(ctx, "a", []byte("2"))
		_ = tx.Set(ctx, "b", []byte("2"))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, offline_errors.ErrTransactionAborted)

	value, _ := get(t, o, "a")
	assert.Equal(t, "1", value)
	_, ok := get(t, o, "b")
	assert.False(t, ok)
	assert.Equal(t, 0, o.Pending())
}

func TestOverlay_NestedRollbackKeepsOuterWrites(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	o := New(mem)

	err := o.Transaction(ctx, func(outer *Overlay) error {
		_ = outer.Set(ctx, "outer", []byte("1"))
		inner := outer.Transaction(ctx, func(inner *Overlay) error {
			_ = inner.Set(ctx, "inner", []byte("1"))
			return errBoom
		})
		assert.ErrorIs(t, inner, errBoom)
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, o.Commit(ctx))

	_, ok := get(t, mem, "outer")
	assert.True(t, ok)
	_, ok = get(t, mem, "inner")
	assert.False(t, ok)
}

func TestOverlay_PartialFlush(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Memory: store.NewMemory(), failKey: "b"}
	o := New(fs)
	_ = o.Set(ctx, "a", []byte("1"))
	_ = o.Set(ctx, "b", []byte("2"))
	_ = o.Set(ctx, "c", []byte("3"))

	err := o.Commit(ctx)
	assert.ErrorIs(t, err, offline_errors.ErrPartialFlush)
	assert.ErrorIs(t, err, errBoom)

	_, ok := get(t, fs, "a")
	assert.True(t, ok, "keys flushed before the failure are not rolled back")
	_, ok = get(t, fs, "c")
	assert.False(t, ok)
	assert.Equal(t, 2, o.Pending())
}

func TestOverlay_FirstKeyFailureIsPlain(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Memory: store.NewMemory(), failKey: "a"}
	o := New(fs)
	_ = o.Set(ctx, "a", []byte("1"))

	err := o.Commit(ctx)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, offline_errors.ErrPartialFlush)
}
