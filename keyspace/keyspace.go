// Package keyspace defines the persisted key layout.
//
// All keys of a table live under its namespace, the escaped table key
// followed by '/':
//
//	{table}/meta                 table metadata
//	{table}/rows/{id}            row
//	{table}/rows/{id}/indexes    row index snapshot
//	{table}/indexes/{index}      index group list
//
// Variable components are percent-encoded with url.PathEscape, so an escaped
// component never contains '/'. The trailing '/' of the namespace terminates
// the table key: "comments/" is never a prefix of "comments2/...".
package keyspace

import (
	"net/url"
	"strings"
)

const (
	metaSegment    = "meta"
	rowsSegment    = "rows"
	indexesSegment = "indexes"
	sep            = "/"
)

func escape(component string) string {
	return url.PathEscape(component)
}

// TablePrefix is the namespace shared by every key of the table.
func TablePrefix(table string) string {
	return escape(table) + sep
}

func MetaKey(table string) string {
	return TablePrefix(table) + metaSegment
}

func RowPrefix(table string) string {
	return TablePrefix(table) + rowsSegment + sep
}

func RowKey(table, id string) string {
	return RowPrefix(table) + escape(id)
}

func RowIndexesKey(table, id string) string {
	return RowKey(table, id) + sep + indexesSegment
}

func IndexKey(table, index string) string {
	return TablePrefix(table) + indexesSegment + sep + escape(index)
}

// InTable reports whether key belongs to the table namespace.
func InTable(table, key string) bool {
	return strings.HasPrefix(key, TablePrefix(table))
}

// ParseRowKey extracts the row id from a row key. Snapshot keys, index keys
// and keys of other tables are rejected.
func ParseRowKey(table, key string) (id string, ok bool) {
	rest, found := strings.CutPrefix(key, RowPrefix(table))
	if !found || strings.Contains(rest, sep) {
		return "", false
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return id, true
}
