// Package tables holds table definitions: identity, key extraction, index
// extractors, the deletion predicate, the delta source and the forced-resync
// flag.
package tables

import (
	"context"
	"fmt"
	"time"

	"github.com/drpcorg/offline/offline_errors"
)

const DefaultKeyPath = "id"

// Row is an open-shape attribute map.
type Row map[string]any

type IndexType byte

const (
	ColumnIndex IndexType = 'C'
	FuncIndex   IndexType = 'F'
)

// Extractor derives an index value from a row. ok=false leaves the row out
// of the index.
type Extractor func(row Row) (value any, ok bool)

type IndexDef struct {
	Name   string
	Type   IndexType
	Column string
	Func   Extractor
}

func Column(name, column string) IndexDef {
	return IndexDef{Name: name, Type: ColumnIndex, Column: column}
}

func Func(name string, f Extractor) IndexDef {
	return IndexDef{Name: name, Type: FuncIndex, Func: f}
}

// Value evaluates the index against row. Missing columns and predicate
// values count as undefined.
func (d IndexDef) Value(row Row) (any, bool) {
	var value any
	var ok bool
	switch d.Type {
	case ColumnIndex:
		value, ok = row[d.Column]
	case FuncIndex:
		value, ok = d.Func(row)
	}
	if !ok {
		return nil, false
	}
	if _, fn := AsPredicate(value); fn {
		return nil, false
	}
	return Normalize(value), true
}

// Source supplies full current-state rows changed since a point in time,
// or every row when since is nil.
type Source interface {
	GetSince(ctx context.Context, since *time.Time) ([]Row, error)
}

type SourceFunc func(ctx context.Context, since *time.Time) ([]Row, error)

func (f SourceFunc) GetSince(ctx context.Context, since *time.Time) ([]Row, error) {
	return f(ctx, since)
}

type Table struct {
	Key     string
	KeyPath string
	Indexes []IndexDef
	Source  Source
	// IsItemDeleted marks rows that a merge removes instead of upserting.
	// It runs while Sync holds the root transaction and must not write to
	// the database.
	IsItemDeleted func(row Row) (bool, error)
	// ForceSync ignores the last sync time: every sync fetches everything
	// and replaces the table.
	ForceSync bool
}

func (t *Table) SetDefaults() {
	if t.KeyPath == "" {
		t.KeyPath = DefaultKeyPath
	}
}

func (t *Table) Valid() error {
	if t.Key == "" {
		return fmt.Errorf("%w: empty table key", offline_errors.ErrBadTable)
	}
	names := make(map[string]struct{}, len(t.Indexes))
	for _, d := range t.Indexes {
		if d.Name == "" {
			return fmt.Errorf("%w: %s: unnamed index", offline_errors.ErrBadTable, t.Key)
		}
		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate index %s", offline_errors.ErrBadTable, t.Key, d.Name)
		}
		names[d.Name] = struct{}{}
		switch d.Type {
		case ColumnIndex:
			if d.Column == "" {
				return fmt.Errorf("%w: %s: index %s has no column", offline_errors.ErrBadTable, t.Key, d.Name)
			}
		case FuncIndex:
			if d.Func == nil {
				return fmt.Errorf("%w: %s: index %s has no extractor", offline_errors.ErrBadTable, t.Key, d.Name)
			}
		default:
			return fmt.Errorf("%w: %s: index %s has unknown type %q", offline_errors.ErrBadTable, t.Key, d.Name, d.Type)
		}
	}
	return nil
}

// KeyOf returns the row identity, the value at the key path.
func (t *Table) KeyOf(row Row) (any, bool) {
	id, ok := row[t.KeyPath]
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

// IndexValuesOf evaluates every index; undefined results are left out.
func (t *Table) IndexValuesOf(row Row) map[string]any {
	values := make(map[string]any, len(t.Indexes))
	for _, d := range t.Indexes {
		if value, ok := d.Value(row); ok {
			values[d.Name] = value
		}
	}
	return values
}

func (t *Table) IsDeleted(row Row) (bool, error) {
	if t.IsItemDeleted == nil {
		return false, nil
	}
	return t.IsItemDeleted(row)
}

// ColumnIndexFor finds the first column index over column.
func (t *Table) ColumnIndexFor(column string) (IndexDef, bool) {
	for _, d := range t.Indexes {
		if d.Type == ColumnIndex && d.Column == column {
			return d, true
		}
	}
	return IndexDef{}, false
}

// Meta is the per-table sync state.
type Meta struct {
	LastSync *time.Time `json:"lastSync,omitempty"`
}
