package keyspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyspace_Layout(t *testing.T) {
	assert.Equal(t, "todos/meta", MetaKey("todos"))
	assert.Equal(t, "todos/rows/1", RowKey("todos", "1"))
	assert.Equal(t, "todos/rows/1/indexes", RowIndexesKey("todos", "1"))
	assert.Equal(t, "todos/indexes/enabled", IndexKey("todos", "enabled"))
}

func TestKeyspace_Escaping(t *testing.T) {
	key := RowKey("a/b", "x/rows/y")
	assert.Equal(t, "a%2Fb/rows/x%2Frows%2Fy", key)

	id, ok := ParseRowKey("a/b", key)
	assert.True(t, ok)
	assert.Equal(t, "x/rows/y", id)

	_, ok = ParseRowKey("a", key)
	assert.False(t, ok)
}

func TestKeyspace_ParseRowKeyRejectsNonRows(t *testing.T) {
	_, ok := ParseRowKey("todos", RowIndexesKey("todos", "1"))
	assert.False(t, ok)
	_, ok = ParseRowKey("todos", IndexKey("todos", "rows"))
	assert.False(t, ok)
	_, ok = ParseRowKey("todos", MetaKey("todos"))
	assert.False(t, ok)

	id, ok := ParseRowKey("todos", RowKey("todos", "100%"))
	assert.True(t, ok)
	assert.Equal(t, "100%", id)
}

func TestKeyspace_PrefixCollision(t *testing.T) {
	assert.True(t, InTable("comments", RowKey("comments", "1")))
	assert.False(t, InTable("comments", RowKey("comments2", "1")))
	assert.False(t, InTable("comments2", MetaKey("comments")))
}
